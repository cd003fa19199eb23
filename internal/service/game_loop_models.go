package service

import (
	"time"

	"chaos-stories/internal/domain"
	"chaos-stories/internal/game"
	"chaos-stories/internal/transition"

	"github.com/google/uuid"
)

// EventType classifies a GameEvent.
type EventType string

const (
	EventPhaseChanged EventType = "phase_changed"
	EventTransition   EventType = "transition"
	EventFinished     EventType = "playthrough_finished"
)

// GameEvent is pushed to subscribers of a session.
type GameEvent struct {
	ID         uuid.UUID            `json:"id"`
	SessionID  uuid.UUID            `json:"session_id"`
	Type       EventType            `json:"type"`
	From       game.Phase           `json:"from,omitempty"`
	Transition transition.EventKind `json:"transition,omitempty"`
	View       View                 `json:"view"`
	At         time.Time            `json:"at"`
}

// Notifier receives game events on the session loop. Implementations must not block.
type Notifier interface {
	Notify(GameEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(GameEvent)

func (f NotifierFunc) Notify(e GameEvent) { f(e) }

// View is the query surface of a playthrough: state snapshot plus everything derived for display.
type View struct {
	SessionID       uuid.UUID        `json:"session_id"`
	StoryID         string           `json:"story_id"`
	State           game.State       `json:"state"`
	Locked          bool             `json:"locked"`
	SceneText       string           `json:"scene_text,omitempty"`
	FlavorText      string           `json:"flavor_text,omitempty"`
	Choices         []domain.Choice  `json:"choices,omitempty"`
	OutcomeText     string           `json:"outcome_text,omitempty"`
	TransitionState transition.State `json:"transition_state"`
	Opacity         float64          `json:"opacity"`
}

// Outcome is how a playthrough finished.
type Outcome string

const (
	OutcomeDeath  Outcome = "death"
	OutcomeEnding Outcome = "ending"
)

// Summary describes a finished playthrough.
type Summary struct {
	SessionID        uuid.UUID          `json:"session_id"`
	StoryID          string             `json:"story_id"`
	CharacterID      domain.CharacterID `json:"character_id"`
	Outcome          Outcome            `json:"outcome"`
	EndingID         string             `json:"ending_id,omitempty"`
	SceneID          string             `json:"scene_id"`
	ChaosLevel       int                `json:"chaos_level"`
	Choices          int                `json:"choices"`
	CharacterChoices int                `json:"character_choices"`
	Duration         time.Duration      `json:"duration"`
	FinishedAt       time.Time          `json:"finished_at"`
}

// LoopOptions are the timing settings of a playthrough.
type LoopOptions struct {
	Transition   transition.Options
	OutcomeHold  time.Duration
	AssetTimeout time.Duration
}

// DefaultLoopOptions matches the client presentation timings.
func DefaultLoopOptions() LoopOptions {
	return LoopOptions{
		Transition:   transition.DefaultOptions(),
		OutcomeHold:  3 * time.Second,
		AssetTimeout: 2 * time.Second,
	}
}

// Metrics is the telemetry a playthrough reports.
type Metrics interface {
	game.Recorder
	transition.Recorder
	ChoiceMade(characterSpecific bool)
	PlaythroughFinished(outcome, endingID string)
}

type nopMetrics struct{}

func (nopMetrics) PhaseChanged(game.Phase, game.Phase) {}
func (nopMetrics) TransitionRejected(game.Phase, game.Phase) {}
func (nopMetrics) AssetLoaded(transition.LoadResult, time.Duration) {}
func (nopMetrics) PreloadCeilingHit() {}
func (nopMetrics) ChoiceMade(bool) {}
func (nopMetrics) PlaythroughFinished(string, string) {}
