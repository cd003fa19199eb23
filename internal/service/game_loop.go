package service

import (
	"fmt"
	"time"

	"chaos-stories/internal/domain"
	"chaos-stories/internal/game"
	"chaos-stories/internal/transition"
	"chaos-stories/pkg/eventloop"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GameLoopDeps wires a GameLoop. Metrics, Notifier and OnFinish are optional.
type GameLoopDeps struct {
	Logger    *zap.Logger
	Story     *domain.Story
	Scheduler eventloop.Scheduler
	Loader    transition.AssetLoader
	Cache     *transition.AssetCache
	RNG       domain.IntN
	Metrics   Metrics
	Notifier  Notifier
	OnFinish  func(Summary)
	Options   LoopOptions
	Now       func() time.Time
}

// GameLoop runs one playthrough. It owns the state machine and the transition engine and turns
// engine events into phase changes. Every method must be called on the loop of its Scheduler.
type GameLoop struct {
	id       uuid.UUID
	logger   *zap.Logger
	story    *domain.Story
	sched    eventloop.Scheduler
	machine  *game.Machine
	engine   *transition.Engine
	metrics  Metrics
	notifier Notifier
	onFinish func(Summary)
	opts     LoopOptions
	now      func() time.Time

	outcomeTimer eventloop.Timer
	outcomeSeq   uint64
	startedAt    time.Time
}

// NewGameLoop creates a playthrough in the menu phase.
func NewGameLoop(id uuid.UUID, deps GameLoopDeps) *GameLoop {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger.With(zap.String("session_id", id.String()))

	l := &GameLoop{
		id:       id,
		logger:   logger.Named("game_loop"),
		story:    deps.Story,
		sched:    deps.Scheduler,
		metrics:  deps.Metrics,
		notifier: deps.Notifier,
		onFinish: deps.OnFinish,
		opts:     deps.Options,
		now:      deps.Now,
	}
	l.machine = game.NewMachine(logger, deps.RNG, deps.Metrics)
	l.machine.Subscribe(l.onPhaseChanged)

	preloader := transition.NewPreloader(logger, deps.Scheduler, deps.Loader, deps.Cache, deps.Options.AssetTimeout, deps.Metrics)
	l.engine = transition.NewEngine(logger, deps.Scheduler, preloader, deps.Options.Transition, l, deps.Metrics)
	return l
}

// ID returns the session id of the playthrough.
func (l *GameLoop) ID() uuid.UUID { return l.id }

// EnterCharacterSelect leaves the menu.
func (l *GameLoop) EnterCharacterSelect() error {
	return l.machine.EnterCharacterSelect()
}

// SelectCharacter picks the playthrough character.
func (l *GameLoop) SelectCharacter(id domain.CharacterID) error {
	c, ok := l.story.Character(id)
	if !ok {
		l.logger.Warn("Unknown character requested", zap.String("character_id", string(id)))
		return fmt.Errorf("%w: %s", ErrCharacterNotFound, id)
	}
	return l.machine.SelectCharacter(c)
}

// StartGame enters the start scene and reveals its choices.
func (l *GameLoop) StartGame() error {
	start, err := l.story.StartScene()
	if err != nil {
		return err
	}
	if err := l.machine.StartGame(start); err != nil {
		return err
	}
	l.startedAt = l.now()
	l.engine.PreloadImage(start.BackgroundImage)
	l.preloadNeighbours(start)
	return l.machine.RevealChoices()
}

// Choose resolves the player's choice. A satisfied death condition ends the playthrough at once,
// before any chaos is applied. Otherwise the outcome is shown and dismissed after the outcome hold.
func (l *GameLoop) Choose(choiceID string) error {
	if l.machine.Locked() {
		return ErrInputLocked
	}
	if l.machine.Phase() != game.PhaseShowingChoices {
		return fmt.Errorf("%w: phase %s", ErrChoicesNotAccepted, l.machine.Phase())
	}

	state := l.machine.State()
	choice, ok := l.findVisibleChoice(state, choiceID)
	if !ok {
		l.logger.Warn("Choice is not available", zap.String("choice_id", choiceID), zap.String("scene_id", state.CurrentScene.ID))
		return fmt.Errorf("%w: %s", ErrChoiceNotFound, choiceID)
	}
	log := l.logger.With(zap.String("choice_id", choice.ID), zap.String("scene_id", state.CurrentScene.ID))

	if err := l.machine.RecordChoice(&choice); err != nil {
		return err
	}
	l.metrics.ChoiceMade(choice.IsCharacterSpecific())

	if text, dead := choice.Death(state.ChaosLevel); dead {
		log.Info("Death condition met", zap.Int("chaos_level", state.ChaosLevel), zap.Int("min_chaos", choice.DeathCondition.MinChaos))
		return l.machine.MarkDead(text)
	}

	if err := l.machine.RevealOutcome(); err != nil {
		return err
	}
	if choice.OutcomeText == "" {
		return l.completeOutcome()
	}

	l.outcomeSeq++
	seq := l.outcomeSeq
	l.outcomeTimer = l.sched.AfterFunc(l.opts.OutcomeHold, func() {
		if seq != l.outcomeSeq || l.machine.Phase() != game.PhaseShowingOutcome {
			return
		}
		if err := l.completeOutcome(); err != nil {
			log.Error("Failed to auto-dismiss outcome", zap.Error(err))
		}
	})
	return nil
}

// CompleteOutcome dismisses the outcome before the hold elapses.
func (l *GameLoop) CompleteOutcome() error {
	l.stopOutcomeTimer()
	return l.completeOutcome()
}

func (l *GameLoop) completeOutcome() error {
	l.stopOutcomeTimer()
	if _, err := l.machine.CompleteOutcome(); err != nil {
		return err
	}

	state := l.machine.State()
	scene, choice := state.CurrentScene, state.SelectedChoice
	if l.story.IsSelfLoop(choice, scene.ID) {
		if choice.NextSceneID != scene.ID {
			l.logger.Warn("Choice target does not exist, staying in scene",
				zap.String("choice_id", choice.ID),
				zap.String("next_scene_id", choice.NextSceneID),
			)
		}
		if err := l.machine.CompleteTransition(scene); err != nil {
			return err
		}
		return l.machine.RevealChoices()
	}

	next, _ := l.story.Scene(choice.NextSceneID)
	return l.engine.TransitionTo(next, scene.ID)
}

// Restart abandons timers and any running transition and returns to the menu.
func (l *GameLoop) Restart() error {
	if err := l.machine.Restart(); err != nil {
		return err
	}
	l.stopOutcomeTimer()
	l.engine.Cancel()
	l.startedAt = time.Time{}
	return nil
}

// Close releases timers and the running transition. The loop must not be used afterwards.
func (l *GameLoop) Close() {
	l.stopOutcomeTimer()
	l.engine.Cancel()
}

// OnTransitionEvent implements transition.Listener.
func (l *GameLoop) OnTransitionEvent(ev transition.Event) {
	log := l.logger.With(zap.String("event", string(ev.Kind)), zap.String("scene_id", ev.Scene.ID))
	var err error
	switch ev.Kind {
	case transition.EventStart:
		l.notify(EventTransition, "", ev.Kind)
	case transition.EventSceneReady:
		if err = l.machine.CompleteTransition(ev.Scene); err == nil {
			l.preloadNeighbours(ev.Scene)
		}
	case transition.EventComplete:
		l.notify(EventTransition, "", ev.Kind)
		err = l.machine.RevealChoices()
	case transition.EventEndingReached:
		err = l.reachEnding(ev.Scene)
	}
	if err != nil {
		log.Error("Failed to apply transition event", zap.Error(err))
	}
}

func (l *GameLoop) reachEnding(scene *domain.Scene) error {
	state := l.machine.State()
	var character domain.CharacterID
	if state.Character != nil {
		character = state.Character.ID
	}
	ending, matched := l.story.SelectEnding(scene, state.ChaosLevel, character, state.CharacterChoiceCount)
	if !matched {
		l.logger.Warn("No ending matches, using scene fallback", zap.String("scene_id", scene.ID), zap.Int("chaos_level", state.ChaosLevel))
	}
	return l.machine.MarkEnding(scene, ending)
}

// View returns the current state and everything derived from it for display.
func (l *GameLoop) View() View {
	s := l.machine.State()
	v := View{
		SessionID:       l.id,
		StoryID:         l.story.ID,
		State:           s,
		Locked:          s.Phase.IsLocked(),
		TransitionState: l.engine.State(),
		Opacity:         l.engine.Opacity(),
	}
	if s.CurrentScene != nil {
		v.SceneText = domain.ResolveText(s.CurrentScene, s.PreviousSceneID, s.ChaosLevel)
		if s.Character != nil {
			v.FlavorText = s.CurrentScene.FlavorText(s.Character.ID)
			if s.Phase == game.PhaseSceneDisplay || s.Phase == game.PhaseShowingChoices {
				v.Choices = domain.VisibleChoices(s.CurrentScene, s.Character.ID)
			}
		}
	}
	if s.Phase == game.PhaseShowingOutcome && s.SelectedChoice != nil {
		v.OutcomeText = s.SelectedChoice.OutcomeText
	}
	return v
}

func (l *GameLoop) onPhaseChanged(from game.Phase, next game.State) {
	l.notify(EventPhaseChanged, from, "")
	if !next.Phase.IsFinished() {
		return
	}

	summary := l.summarize(next)
	l.logger.Info("Playthrough finished",
		zap.String("outcome", string(summary.Outcome)),
		zap.String("ending_id", summary.EndingID),
		zap.Int("chaos_level", summary.ChaosLevel),
	)
	l.metrics.PlaythroughFinished(string(summary.Outcome), summary.EndingID)
	l.notify(EventFinished, from, "")
	if l.onFinish != nil {
		l.onFinish(summary)
	}
}

func (l *GameLoop) summarize(s game.State) Summary {
	sum := Summary{
		SessionID:        l.id,
		StoryID:          l.story.ID,
		Outcome:          OutcomeDeath,
		ChaosLevel:       s.ChaosLevel,
		Choices:          len(s.ChoiceHistory),
		CharacterChoices: s.CharacterChoiceCount,
		FinishedAt:       l.now(),
	}
	if !l.startedAt.IsZero() {
		sum.Duration = sum.FinishedAt.Sub(l.startedAt)
	}
	if s.Character != nil {
		sum.CharacterID = s.Character.ID
	}
	if s.CurrentScene != nil {
		sum.SceneID = s.CurrentScene.ID
	}
	if s.Phase == game.PhaseEnding {
		sum.Outcome = OutcomeEnding
		if s.Ending != nil {
			sum.EndingID = s.Ending.ID
		}
	}
	return sum
}

func (l *GameLoop) notify(t EventType, from game.Phase, kind transition.EventKind) {
	if l.notifier == nil {
		return
	}
	l.notifier.Notify(GameEvent{
		ID:         uuid.New(),
		SessionID:  l.id,
		Type:       t,
		From:       from,
		Transition: kind,
		View:       l.View(),
		At:         l.now(),
	})
}

func (l *GameLoop) findVisibleChoice(s game.State, id string) (domain.Choice, bool) {
	if s.CurrentScene == nil || s.Character == nil {
		return domain.Choice{}, false
	}
	for _, c := range domain.VisibleChoices(s.CurrentScene, s.Character.ID) {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Choice{}, false
}

func (l *GameLoop) preloadNeighbours(scene *domain.Scene) {
	for _, next := range l.story.Neighbours(scene) {
		l.engine.PreloadImage(next.BackgroundImage)
	}
}

func (l *GameLoop) stopOutcomeTimer() {
	if l.outcomeTimer != nil {
		l.outcomeTimer.Stop()
		l.outcomeTimer = nil
	}
	l.outcomeSeq++
}
