package intake

import (
	"context"

	"github.com/google/uuid"
)

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// Update saves s only if the stored version still equals s.VersionID,
	// then advances s.VersionID. A stale version yields ErrConflict.
	Update(ctx context.Context, s *Session) error
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Session, int, error)
}
