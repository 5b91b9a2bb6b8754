package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/intake/internal/formflow"
	"github.com/ehr/intake/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type submissionRepoPG struct{ pool *pgxpool.Pool }

func NewSubmissionRepoPG(pool *pgxpool.Pool) SubmissionRepository {
	return &submissionRepoPG{pool: pool}
}

func (r *submissionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const submissionCols = `id, session_id, program, form_version, patient_id, answers, calculations,
	flags, flag_events, requires_review, priority, status, reviewer_id, note, created_at, updated_at`

func (r *submissionRepoPG) scanSubmission(row pgx.Row) (*Submission, error) {
	var s Submission
	var answers, calcs, flags, events []byte
	err := row.Scan(&s.ID, &s.SessionID, &s.Program, &s.FormVersion, &s.PatientID,
		&answers, &calcs, &flags, &events, &s.RequiresReview, &s.Priority, &s.Status,
		&s.ReviewerID, &s.Note, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := decodePayload(&s, answers, calcs, flags, events); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *submissionRepoPG) Create(ctx context.Context, s *Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	p, err := encodePayload(s)
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO review_submission (id, session_id, program, form_version, patient_id,
			answers, calculations, flags, flag_events, requires_review, priority, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		s.ID, s.SessionID, s.Program, s.FormVersion, s.PatientID,
		p.answers, p.calcs, p.flags, p.events, s.RequiresReview, s.Priority, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *submissionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return r.scanSubmission(r.conn(ctx).QueryRow(ctx, `SELECT `+submissionCols+` FROM review_submission WHERE id = $1`, id))
}

func (r *submissionRepoPG) UpdateReview(ctx context.Context, s *Submission, from string) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE review_submission SET status=$2, reviewer_id=$3, note=$4, updated_at=NOW()
		WHERE id = $1 AND status = $5
		RETURNING updated_at`,
		s.ID, s.Status, s.ReviewerID, s.Note, from,
	).Scan(&s.UpdatedAt)
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM review_submission WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleReview
}

func (r *submissionRepoPG) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Submission, int, error) {
	where, args := "", []interface{}{}
	if status != "" {
		where, args = " WHERE status = $1", append(args, status)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM review_submission`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM review_submission%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		submissionCols, where, priorityOrder, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Submission
	for rows.Next() {
		s, err := r.scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

type payload struct {
	answers, calcs, flags, events []byte
}

func encodePayload(s *Submission) (payload, error) {
	var p payload
	var err error
	if p.answers, err = json.Marshal(s.Answers); err != nil {
		return p, fmt.Errorf("encode answers: %w", err)
	}
	if p.calcs, err = json.Marshal(s.Calculations); err != nil {
		return p, fmt.Errorf("encode calculations: %w", err)
	}
	if p.flags, err = json.Marshal(s.Flags); err != nil {
		return p, fmt.Errorf("encode flags: %w", err)
	}
	events := s.FlagEvents
	if events == nil {
		events = []formflow.FlagEvent{}
	}
	if p.events, err = json.Marshal(events); err != nil {
		return p, fmt.Errorf("encode flag events: %w", err)
	}
	return p, nil
}

func decodePayload(s *Submission, answers, calcs, flags, events []byte) error {
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return fmt.Errorf("decode answers of submission %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(calcs, &s.Calculations); err != nil {
		return fmt.Errorf("decode calculations of submission %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(flags, &s.Flags); err != nil {
		return fmt.Errorf("decode flags of submission %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(events, &s.FlagEvents); err != nil {
		return fmt.Errorf("decode flag events of submission %s: %w", s.ID, err)
	}
	return nil
}
