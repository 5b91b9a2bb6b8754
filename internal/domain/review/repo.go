package review

import (
	"context"

	"github.com/google/uuid"
)

type SubmissionRepository interface {
	Create(ctx context.Context, s *Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	// UpdateReview persists status, reviewer and note, provided the stored
	// status is still from. A submission that moved on returns ErrStaleReview.
	UpdateReview(ctx context.Context, s *Submission, from string) error
	// ListByStatus returns submissions most urgent first, oldest first
	// within a priority. An empty status lists every submission.
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Submission, int, error)
}

const priorityOrder = `CASE priority WHEN 'urgent' THEN 0 WHEN 'elevated' THEN 1 ELSE 2 END, created_at`
