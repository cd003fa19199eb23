package game

import (
	"slices"

	"chaos-stories/internal/domain"
)

// Phase is a coarse game-flow phase.
type Phase string

const (
	PhaseMenu            Phase = "menu"
	PhaseCharacterSelect Phase = "character_select"
	PhaseSceneDisplay    Phase = "scene_display"
	PhaseShowingChoices  Phase = "showing_choices"
	PhaseShowingOutcome  Phase = "showing_outcome"
	PhaseTransitioning   Phase = "transitioning"
	PhaseDead            Phase = "dead"
	PhaseEnding          Phase = "ending"
)

// validTransitions is the allowed-successor table. Phases missing from a row are rejected.
var validTransitions = map[Phase][]Phase{
	PhaseMenu:            {PhaseCharacterSelect},
	PhaseCharacterSelect: {PhaseSceneDisplay, PhaseCharacterSelect},
	PhaseSceneDisplay:    {PhaseShowingChoices},
	PhaseShowingChoices:  {PhaseShowingOutcome, PhaseDead},
	PhaseShowingOutcome:  {PhaseTransitioning},
	PhaseTransitioning:   {PhaseSceneDisplay, PhaseDead, PhaseEnding},
	PhaseDead:            {PhaseMenu},
	PhaseEnding:          {PhaseMenu},
}

// Phases lists every phase in declaration order.
var Phases = []Phase{
	PhaseMenu, PhaseCharacterSelect, PhaseSceneDisplay, PhaseShowingChoices,
	PhaseShowingOutcome, PhaseTransitioning, PhaseDead, PhaseEnding,
}

// CanTransition reports whether to is an allowed successor of from.
func CanTransition(from, to Phase) bool {
	return slices.Contains(validTransitions[from], to)
}

// IsLocked reports whether input must be ignored in phase p.
func (p Phase) IsLocked() bool {
	return p == PhaseShowingOutcome || p == PhaseTransitioning
}

// IsFinished reports whether the playthrough is over.
func (p Phase) IsFinished() bool {
	return p == PhaseDead || p == PhaseEnding
}

// HistoryEntry records one resolved choice.
type HistoryEntry struct {
	ChoiceID             string `json:"choice_id"`
	SceneID              string `json:"scene_id"`
	WasCharacterSpecific bool   `json:"was_character_specific"`
	WasTimeout           bool   `json:"was_timeout"`
	ChaosChange          int    `json:"chaos_change"`
}

// State is the canonical game state of one playthrough.
type State struct {
	Phase                Phase             `json:"phase"`
	Character            *domain.Character `json:"character,omitempty"`
	CurrentScene         *domain.Scene     `json:"current_scene,omitempty"`
	PreviousSceneID      string            `json:"previous_scene_id,omitempty"`
	ChaosLevel           int               `json:"chaos_level"`
	SelectedChoice       *domain.Choice    `json:"selected_choice,omitempty"`
	CharacterChoiceCount int               `json:"character_choice_count"`
	ChoiceHistory        []HistoryEntry    `json:"choice_history"`
	DeathText            string            `json:"death_text,omitempty"`
	Ending               *domain.Ending    `json:"ending,omitempty"`
}

// NewState returns the state a playthrough starts with.
func NewState() State {
	return State{
		Phase:         PhaseMenu,
		ChoiceHistory: []HistoryEntry{},
	}
}

// Clone copies the state. Character, scene and ending point at immutable story data and are shared;
// the selected choice and history are copied.
func (s State) Clone() State {
	c := s
	c.ChoiceHistory = slices.Clone(s.ChoiceHistory)
	if c.ChoiceHistory == nil {
		c.ChoiceHistory = []HistoryEntry{}
	}
	if s.SelectedChoice != nil {
		choice := *s.SelectedChoice
		c.SelectedChoice = &choice
	}
	return c
}
