package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCollaborator_WrapsAndMatches(t *testing.T) {
	cause := errors.New("connection refused")
	err := Collaborator("sqlite upsert", cause)

	if !errors.Is(err, ErrCollaborator) {
		t.Errorf("expected ErrCollaborator match, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be reachable through Unwrap")
	}
	if err.Error() != "sqlite upsert: connection refused" {
		t.Errorf("unexpected message %q", err.Error())
	}

	var ce *CollaboratorError
	if !errors.As(err, &ce) || ce.Op != "sqlite upsert" {
		t.Errorf("expected *CollaboratorError with op, got %#v", err)
	}
}

func TestCollaborator_Nil(t *testing.T) {
	if err := Collaborator("op", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestCollaborator_KeepsClassifiedErrors(t *testing.T) {
	notFound := fmt.Errorf("%w: strategy abc", ErrNotFound)
	err := Collaborator("sqlite get", notFound)
	if err != notFound {
		t.Errorf("expected classified error to pass through, got %v", err)
	}
	if errors.Is(err, ErrCollaborator) {
		t.Error("not-found must not be reported as a collaborator failure")
	}
}
