package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/domain/intake"
	"github.com/ehr/intake/internal/formflow"
)

// FormSource resolves a program to the form used to label answers in the
// provider summary.
type FormSource interface {
	Get(program string) (*formflow.Form, bool)
}

type Service struct {
	submissions SubmissionRepository
	forms       FormSource
	logger      zerolog.Logger
}

func NewService(submissions SubmissionRepository, forms FormSource, logger zerolog.Logger) *Service {
	return &Service{
		submissions: submissions,
		forms:       forms,
		logger:      logger.With().Str("component", "review").Logger(),
	}
}

// Enqueue queues a submitted intake session for clinical review. It runs in
// the caller's transaction when ctx carries one.
func (s *Service) Enqueue(ctx context.Context, sess *intake.Session) (uuid.UUID, error) {
	sub := FromSession(sess)
	if err := s.submissions.Create(ctx, sub); err != nil {
		return uuid.Nil, fmt.Errorf("create submission for session %s: %w", sess.ID, err)
	}
	s.logger.Info().Str("submission_id", sub.ID.String()).Str("session_id", sess.ID.String()).
		Str("priority", sub.Priority).Bool("requires_review", sub.RequiresReview).Msg("submission queued")
	return sub.ID, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return s.submissions.GetByID(ctx, id)
}

// Queue lists submissions in status, most urgent first.
func (s *Service) Queue(ctx context.Context, status string, limit, offset int) ([]*Submission, int, error) {
	if status != "" && !ValidStatus(status) {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return s.submissions.ListByStatus(ctx, status, limit, offset)
}

// Review moves a submission to status on behalf of reviewerID. The write only
// lands if nobody else moved the submission since it was read.
func (s *Service) Review(ctx context.Context, id uuid.UUID, reviewerID, status, note string) (*Submission, error) {
	sub, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := sub.Status
	if !CanTransition(from, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}
	sub.Status = status
	if reviewerID != "" {
		sub.ReviewerID = &reviewerID
	}
	if note = strings.TrimSpace(note); note != "" {
		sub.Note = &note
	}
	if err := s.submissions.UpdateReview(ctx, sub, from); err != nil {
		return nil, fmt.Errorf("update submission %s: %w", id, err)
	}
	s.logger.Info().Str("submission_id", id.String()).Str("status", status).
		Str("reviewer_id", reviewerID).Msg("submission reviewed")
	return sub, nil
}

// Summary renders the provider summary of a submission as HTML.
func (s *Service) Summary(ctx context.Context, id uuid.UUID) ([]byte, error) {
	sub, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var form *formflow.Form
	if s.forms != nil {
		form, _ = s.forms.Get(sub.Program)
	}
	return RenderSummary(sub, form)
}
