package game

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrNoCharacter       = errors.New("no character selected")
	ErrNoActiveScene     = errors.New("no active scene")
	ErrNoChoiceSelected  = errors.New("no choice selected")
	ErrInputLocked       = errors.New("input is locked")
)

// TransitionError describes a rejected phase change.
type TransitionError struct {
	From    Phase
	To      Phase
	Allowed []Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition %s -> %s (allowed: %v)", e.From, e.To, e.Allowed)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
