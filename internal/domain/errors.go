package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidState           = errors.New("invalid state")
	ErrTransientStore         = errors.New("transient store error")
	ErrValidationInput        = errors.New("invalid input")
	ErrRunInProgress          = errors.New("reconciliation run already in progress")
	ErrConcurrentModification = errors.New("balance changed since it was read")
)

// StateError reports an illegal incident transition together with the
// status the incident actually has, so callers can resynchronize.
type StateError struct {
	IncidentID string
	Current    IncidentStatus
	Attempted  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s incident %s: status is %s", e.Attempted, e.IncidentID, e.Current)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidationInput }

// NotFoundf builds an ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Transient wraps a store failure as ErrTransientStore.
func Transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStore, err)
}
