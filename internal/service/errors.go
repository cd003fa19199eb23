package service

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionClosed      = errors.New("session closed")
	ErrTooManySessions    = errors.New("session limit reached")
	ErrInputLocked        = errors.New("input is locked until the current outcome or transition finishes")
	ErrChoiceNotFound     = errors.New("choice not available in the current scene")
	ErrCharacterNotFound  = errors.New("character not found")
	ErrChoicesNotAccepted = errors.New("choices are not being accepted in the current phase")
)
