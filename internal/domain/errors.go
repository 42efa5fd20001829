package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness conflict.
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation marks malformed input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState marks an operation against a cart or quote in an incompatible state.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidTransition marks a quote status change the current state does not permit.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrTransient marks a failure of the database or an external collaborator that is safe to retry.
	ErrTransient = errors.New("temporarily unavailable")
)

// Error carries a kind sentinel plus a caller-facing message.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) error {
	return &Error{Kind: ErrInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...any) error {
	return &Error{Kind: ErrInvalidTransition, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds while the cause stays inspectable.
func Transient(err error, format string, args ...any) error {
	return &Error{Kind: ErrTransient, Msg: fmt.Sprintf(format, args...), Err: err}
}
