package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches any NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrEmptyPool matches any EmptyPoolError.
	ErrEmptyPool = errors.New("no questions available for this topic yet")
	// ErrValidation matches any ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence matches any PersistenceError.
	ErrPersistence = errors.New("persistence failed")
	// ErrAlreadyAnswered is returned when a session question is answered twice.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrInvalidTransition is returned when a session transition is not allowed in its current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrSessionNotFound is returned when a quiz session has not been initialized.
	ErrSessionNotFound = errors.New("quiz session not found")
)

// NotFoundError reports a missing topic, question, batch or record.
type NotFoundError struct {
	Kind string
	ID   string
}

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// EmptyPoolError means the topic exists but has no eligible questions.
type EmptyPoolError struct {
	TopicID    string
	Difficulty *Difficulty
}

func (e *EmptyPoolError) Error() string {
	if e.Difficulty != nil {
		return fmt.Sprintf("%s (topic %q, difficulty %s)", ErrEmptyPool.Error(), e.TopicID, *e.Difficulty)
	}
	return fmt.Sprintf("%s (topic %q)", ErrEmptyPool.Error(), e.TopicID)
}

func (e *EmptyPoolError) Is(target error) bool { return target == ErrEmptyPool }

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PersistenceError wraps a storage failure that happened after a successful grade.
type PersistenceError struct {
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist result after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }
