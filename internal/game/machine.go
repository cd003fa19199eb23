// Package game holds the game-flow state machine of a single playthrough.
package game

import (
	"slices"

	"chaos-stories/internal/domain"

	"go.uber.org/zap"
)

// Recorder receives phase-change telemetry.
type Recorder interface {
	PhaseChanged(from, to Phase)
	TransitionRejected(from, to Phase)
}

// Listener is notified after a state change has been committed.
type Listener func(from Phase, next State)

type nopRecorder struct{}

func (nopRecorder) PhaseChanged(Phase, Phase) {}
func (nopRecorder) TransitionRejected(Phase, Phase) {}

// Machine owns the canonical State and only changes it through guarded transitions.
// It is not safe for concurrent use; callers serialize access through an event loop.
type Machine struct {
	log       *zap.Logger
	rec       Recorder
	rng       domain.IntN
	state     State
	listeners []Listener
}

// NewMachine creates a machine in the menu phase. rec may be nil.
func NewMachine(log *zap.Logger, rng domain.IntN, rec Recorder) *Machine {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Machine{
		log:   log.Named("game_machine"),
		rec:   rec,
		rng:   rng,
		state: NewState(),
	}
}

// Subscribe registers a listener for committed changes.
func (m *Machine) Subscribe(l Listener) {
	m.listeners = append(m.listeners, l)
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	return m.state.Clone()
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.state.Phase
}

// Locked reports whether player input is currently ignored.
func (m *Machine) Locked() bool {
	return m.state.Phase.IsLocked()
}

// Transition moves to phase to, applying patch to a copy of the state. A rejected transition leaves
// the state untouched and returns a *TransitionError.
func (m *Machine) Transition(to Phase, patch func(*State)) error {
	from := m.state.Phase
	if !CanTransition(from, to) {
		err := &TransitionError{From: from, To: to, Allowed: slices.Clone(validTransitions[from])}
		m.log.Error("Invalid transition attempted",
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Any("allowed", err.Allowed),
		)
		m.rec.TransitionRejected(from, to)
		return err
	}

	next := m.state.Clone()
	if patch != nil {
		patch(&next)
	}
	next.Phase = to
	m.state = next

	m.log.Debug("Phase changed", zap.String("from", string(from)), zap.String("to", string(to)))
	m.rec.PhaseChanged(from, to)
	for _, l := range m.listeners {
		l(from, m.state.Clone())
	}
	return nil
}

// reject логирует невыполненное предусловие операции; состояние не меняется.
func (m *Machine) reject(op string, err error) error {
	m.log.Error("Operation precondition failed",
		zap.String("operation", op),
		zap.String("phase", string(m.state.Phase)),
		zap.Error(err),
	)
	return err
}

// EnterCharacterSelect leaves the menu.
func (m *Machine) EnterCharacterSelect() error {
	return m.Transition(PhaseCharacterSelect, nil)
}

// SelectCharacter picks the playthrough character and resets chaos, counter and history.
func (m *Machine) SelectCharacter(c *domain.Character) error {
	if c == nil {
		return m.reject("select_character", ErrNoCharacter)
	}
	return m.Transition(PhaseCharacterSelect, func(s *State) {
		s.Character = c
		s.ChaosLevel = domain.MinChaos
		s.CharacterChoiceCount = 0
		s.ChoiceHistory = []HistoryEntry{}
	})
}

// StartGame enters the start scene.
func (m *Machine) StartGame(start *domain.Scene) error {
	if m.state.Phase == PhaseCharacterSelect && m.state.Character == nil {
		return m.reject("start_game", ErrNoCharacter)
	}
	if start == nil {
		return m.reject("start_game", ErrNoActiveScene)
	}
	return m.Transition(PhaseSceneDisplay, func(s *State) {
		s.CurrentScene = start
		s.PreviousSceneID = ""
		s.SelectedChoice = nil
	})
}

// RevealChoices shows the choices of the current scene.
func (m *Machine) RevealChoices() error {
	return m.Transition(PhaseShowingChoices, nil)
}

// RecordChoice stores the pending choice. It does not change the phase.
func (m *Machine) RecordChoice(c *domain.Choice) error {
	if c == nil {
		return m.reject("record_choice", ErrNoChoiceSelected)
	}
	if m.state.CurrentScene == nil {
		return m.reject("record_choice", ErrNoActiveScene)
	}
	if m.Locked() {
		return m.reject("record_choice", ErrInputLocked)
	}
	choice := *c
	m.state.SelectedChoice = &choice
	return nil
}

// RevealOutcome shows the outcome of the recorded choice.
func (m *Machine) RevealOutcome() error {
	if m.state.SelectedChoice == nil {
		return m.reject("reveal_outcome", ErrNoChoiceSelected)
	}
	return m.Transition(PhaseShowingOutcome, nil)
}

// CompleteOutcome applies the recorded choice: realizes its chaos delta, clamps the level and appends
// to the history. The returned entry carries the realized delta before clamping.
func (m *Machine) CompleteOutcome() (HistoryEntry, error) {
	choice := m.state.SelectedChoice
	if choice == nil {
		return HistoryEntry{}, m.reject("complete_outcome", ErrNoChoiceSelected)
	}

	var entry HistoryEntry
	err := m.Transition(PhaseTransitioning, func(s *State) {
		delta := domain.RealizeChaosDelta(choice, m.rng)
		entry = HistoryEntry{
			ChoiceID:             choice.ID,
			WasCharacterSpecific: choice.IsCharacterSpecific(),
			ChaosChange:          delta,
		}
		if s.CurrentScene != nil {
			entry.SceneID = s.CurrentScene.ID
		}
		s.ChaosLevel = domain.ApplyChaos(s.ChaosLevel, delta)
		s.ChoiceHistory = append(s.ChoiceHistory, entry)
		if entry.WasCharacterSpecific {
			s.CharacterChoiceCount++
		}
	})
	return entry, err
}

// CompleteTransition enters next. Re-entering the current scene keeps the previous scene id.
func (m *Machine) CompleteTransition(next *domain.Scene) error {
	if next == nil {
		return m.reject("complete_transition", ErrNoActiveScene)
	}
	return m.Transition(PhaseSceneDisplay, func(s *State) {
		enter(s, next)
		s.SelectedChoice = nil
	})
}

// MarkDead ends the playthrough with a death.
func (m *Machine) MarkDead(text string) error {
	return m.Transition(PhaseDead, func(s *State) {
		s.DeathText = text
	})
}

// MarkEnding ends the playthrough on the terminal scene with the selected ending.
func (m *Machine) MarkEnding(scene *domain.Scene, ending *domain.Ending) error {
	return m.Transition(PhaseEnding, func(s *State) {
		if scene != nil {
			enter(s, scene)
		}
		s.SelectedChoice = nil
		s.Ending = ending
	})
}

// Restart replaces the state with a fresh one.
func (m *Machine) Restart() error {
	return m.Transition(PhaseMenu, func(s *State) {
		*s = NewState()
	})
}

func enter(s *State, next *domain.Scene) {
	if s.CurrentScene != nil && s.CurrentScene.ID != next.ID {
		s.PreviousSceneID = s.CurrentScene.ID
	}
	s.CurrentScene = next
}
