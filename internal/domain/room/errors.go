package room

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the workflow engine. Callers receive these as
// structured failures; none are retried automatically.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidPhase = errors.New("action not allowed in current step")
	ErrForbidden    = errors.New("actor not allowed to perform this action")
	ErrValidation   = errors.New("invalid input")
	ErrExternal     = errors.New("settlement gateway failure")
)

// NotFound wraps ErrNotFound with context.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InvalidPhase wraps ErrInvalidPhase with the step the action required.
func InvalidPhase(required Step, current Step) error {
	return fmt.Errorf("%w: requires %s, room is in %s", ErrInvalidPhase, required, current)
}

// Forbidden wraps ErrForbidden with context.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Validation wraps ErrValidation with context.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// External wraps a gateway failure so the caller can retry the same action.
func External(err error) error {
	return fmt.Errorf("%w: %v", ErrExternal, err)
}
