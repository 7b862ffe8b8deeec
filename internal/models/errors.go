package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("ride not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("ride no longer available")
	ErrValidation        = errors.New("validation error")
)

// TransitionError reports an action that is not legal from the ride's
// current status.
type TransitionError struct {
	Action  string
	Current Status
	Reason  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s (action=%s, status=%s)", e.Reason, e.Action, e.Current)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError lists the request fields that were missing or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
