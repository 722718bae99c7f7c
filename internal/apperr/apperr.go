// Package apperr defines the error taxonomy shared by the strategy packages.
//
// Every error returned by the core wraps exactly one of the root sentinels,
// so callers can branch with errors.Is without knowing which package failed:
//
//	ErrValidation   rejected edit, state unchanged (blank name, bad index)
//	ErrNotFound     unknown indicator name or strategy id
//	ErrTranslation  strategy cannot be encoded into a backend request
//	ErrCollaborator store or network failure, never retried by the core
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrTranslation  = errors.New("translation error")
	ErrCollaborator = errors.New("collaborator error")
)

// CollaboratorError wraps a failure reported by the store or the backend.
type CollaboratorError struct {
	Op  string // e.g. "sqlite upsert", "backend POST /api/backtest"
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Is reports ErrCollaborator as a match in addition to the wrapped cause.
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaborator
}

// Collaborator wraps err as a CollaboratorError. It returns nil for a nil err
// and leaves errors that are already classified untouched.
func Collaborator(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrCollaborator) {
		return err
	}
	return &CollaboratorError{Op: op, Err: err}
}
