package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/formflow"
	"github.com/ehr/intake/internal/platform/db"
)

// FormSource resolves a program name to its active form configuration.
type FormSource interface {
	Get(program string) (*formflow.Form, bool)
}

// Submitter hands a submitted session to clinical review and returns the
// id of the queued submission. It is called inside the submit transaction.
type Submitter interface {
	Enqueue(ctx context.Context, s *Session) (uuid.UUID, error)
}

// Ref addresses a stored session on behalf of a caller.
type Ref struct {
	ID uuid.UUID
	// Owner limits access to that patient's sessions; empty allows any.
	Owner string
	// Version must equal the stored version when non-zero.
	Version int
}

// Result is a session together with the engine restored from it.
type Result struct {
	Session      *Session
	Engine       *formflow.Engine
	Moved        bool
	SubmissionID uuid.UUID
}

func (r *Result) View() *View {
	v := NewView(r.Session, r.Engine)
	if r.SubmissionID != uuid.Nil {
		id := r.SubmissionID
		v.SubmissionID = &id
	}
	return v
}

type Service struct {
	sessions  SessionRepository
	forms     FormSource
	submitter Submitter
	tx        db.TxRunner
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(sessions SessionRepository, forms FormSource, submitter Submitter, tx db.TxRunner, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	return &Service{
		sessions:  sessions,
		forms:     forms,
		submitter: submitter,
		tx:        tx,
		logger:    logger.With().Str("component", "intake").Logger(),
		now:       time.Now,
	}
}

// SetClock replaces the clock used for age calculations and flag timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) engine(form *formflow.Form, st *formflow.State, sessionID uuid.UUID) *formflow.Engine {
	opts := []formflow.Option{
		formflow.WithDerivedSkipRules(),
		formflow.WithLogger(s.logger.With().Str("session_id", sessionID.String()).Logger()),
		formflow.WithClock(s.now),
	}
	if st == nil {
		return formflow.New(form, opts...)
	}
	return formflow.Restore(form, *st, opts...)
}

// Start opens a new session for program on behalf of patientID. Prefilled
// answers are merged without navigating; the skip pass honours them on the
// first advance.
func (s *Service) Start(ctx context.Context, program, patientID string, prefill map[string]any) (*Result, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient id is required")
	}
	form, ok := s.forms.Get(program)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, program)
	}
	id := uuid.New()
	e := s.engine(form, nil, id)
	if len(prefill) > 0 {
		e.Prefill(prefill)
	}
	sess := &Session{
		ID:          id,
		Program:     form.Program,
		FormVersion: form.Version,
		PatientID:   patientID,
		Status:      StatusActive,
		State:       e.Snapshot(),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create intake session: %w", err)
	}
	s.logger.Info().Str("session_id", id.String()).Str("program", form.Program).
		Str("form_version", form.Version).Msg("intake session started")
	return &Result{Session: sess, Engine: e}, nil
}

func (s *Service) load(ctx context.Context, ref Ref) (*Session, *formflow.Engine, error) {
	sess, err := s.sessions.GetByID(ctx, ref.ID)
	if err != nil {
		return nil, nil, err
	}
	if ref.Owner != "" && sess.PatientID != ref.Owner {
		return nil, nil, ErrNotFound
	}
	if ref.Version != 0 && ref.Version != sess.VersionID {
		return nil, nil, ErrConflict
	}
	form, ok := s.forms.Get(sess.Program)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownProgram, sess.Program)
	}
	return sess, s.engine(form, &sess.State, sess.ID), nil
}

// Get restores the session without changing it.
func (s *Service) Get(ctx context.Context, ref Ref) (*Result, error) {
	sess, e, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &Result{Session: sess, Engine: e}, nil
}

// apply restores the engine, runs op against it and saves the new snapshot.
func (s *Service) apply(ctx context.Context, ref Ref, op func(e *formflow.Engine) bool) (*Result, error) {
	sess, e, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !sess.Active() {
		return nil, ErrClosed
	}
	moved := op(e)
	if err := s.save(ctx, sess, e); err != nil {
		return nil, err
	}
	return &Result{Session: sess, Engine: e, Moved: moved}, nil
}

func (s *Service) save(ctx context.Context, sess *Session, e *formflow.Engine) error {
	sess.State = e.Snapshot()
	sess.FormVersion = e.Form().Version
	if err := s.sessions.Update(ctx, sess); err != nil {
		return fmt.Errorf("save intake session %s: %w", sess.ID, err)
	}
	return nil
}

// UpdateAnswers merges answers into the session. It never navigates.
func (s *Service) UpdateAnswers(ctx context.Context, ref Ref, answers map[string]any) (*Result, error) {
	return s.apply(ctx, ref, func(e *formflow.Engine) bool {
		e.UpdateAnswers(answers)
		return false
	})
}

func (s *Service) Next(ctx context.Context, ref Ref) (*Result, error) {
	return s.apply(ctx, ref, (*formflow.Engine).GoToNext)
}

func (s *Service) Prev(ctx context.Context, ref Ref) (*Result, error) {
	return s.apply(ctx, ref, (*formflow.Engine).GoToPrev)
}

// GoTo performs a review-screen detour to screenID.
func (s *Service) GoTo(ctx context.Context, ref Ref, screenID string) (*Result, error) {
	return s.apply(ctx, ref, func(e *formflow.Engine) bool {
		return e.GoToScreen(screenID)
	})
}

// Submit closes the session and enqueues it for clinical review in one
// transaction. Only review and terminal screens may submit.
func (s *Service) Submit(ctx context.Context, ref Ref) (*Result, error) {
	var res *Result
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		sess, e, err := s.load(ctx, ref)
		if err != nil {
			return err
		}
		if !sess.Active() {
			return ErrClosed
		}
		if !Submittable(e) {
			return ErrNotSubmittable
		}
		sess.Status = StatusSubmitted
		if err := s.save(ctx, sess, e); err != nil {
			return err
		}
		res = &Result{Session: sess, Engine: e}
		if s.submitter == nil {
			return nil
		}
		subID, err := s.submitter.Enqueue(ctx, sess)
		if err != nil {
			return fmt.Errorf("enqueue review submission: %w", err)
		}
		res.SubmissionID = subID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("session_id", res.Session.ID.String()).Str("program", res.Session.Program).
		Strs("flags", res.Session.State.Flags.Sorted()).Msg("intake session submitted")
	return res, nil
}

// Abandon closes an active session without submitting it.
func (s *Service) Abandon(ctx context.Context, ref Ref) (*Result, error) {
	sess, e, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !sess.Active() {
		return nil, ErrClosed
	}
	sess.Status = StatusAbandoned
	if err := s.save(ctx, sess, e); err != nil {
		return nil, err
	}
	return &Result{Session: sess, Engine: e}, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Session, int, error) {
	return s.sessions.ListByPatient(ctx, patientID, limit, offset)
}
