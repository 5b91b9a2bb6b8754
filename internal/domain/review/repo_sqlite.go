package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/intake/internal/platform/db"
)

type sqlQueryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type submissionRepoSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewSubmissionRepoSQLite(sqlDB *sql.DB) SubmissionRepository {
	return &submissionRepoSQLite{db: sqlDB, now: time.Now}
}

func (r *submissionRepoSQLite) conn(ctx context.Context) sqlQueryable {
	if tx := db.SQLTxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db
}

func (r *submissionRepoSQLite) scanSubmission(row rowScanner) (*Submission, error) {
	var s Submission
	var id, sessionID, answers, calcs, flags, events, created, updated string
	var reviewer, note sql.NullString
	err := row.Scan(&id, &sessionID, &s.Program, &s.FormVersion, &s.PatientID,
		&answers, &calcs, &flags, &events, &s.RequiresReview, &s.Priority, &s.Status,
		&reviewer, &note, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse submission id %q: %w", id, err)
	}
	if s.SessionID, err = uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("parse session id %q: %w", sessionID, err)
	}
	if reviewer.Valid {
		s.ReviewerID = &reviewer.String
	}
	if note.Valid {
		s.Note = &note.String
	}
	if err := decodePayload(&s, []byte(answers), []byte(calcs), []byte(flags), []byte(events)); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = db.ParseTime(created); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = db.ParseTime(updated); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *submissionRepoSQLite) Create(ctx context.Context, s *Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	p, err := encodePayload(s)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	_, err = r.conn(ctx).ExecContext(ctx, `
		INSERT INTO review_submission (id, session_id, program, form_version, patient_id,
			answers, calculations, flags, flag_events, requires_review, priority, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID.String(), s.SessionID.String(), s.Program, s.FormVersion, s.PatientID,
		string(p.answers), string(p.calcs), string(p.flags), string(p.events),
		s.RequiresReview, s.Priority, s.Status, db.FormatTime(now), db.FormatTime(now))
	if err != nil {
		return err
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

func (r *submissionRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return r.scanSubmission(r.conn(ctx).QueryRowContext(ctx, `SELECT `+submissionCols+` FROM review_submission WHERE id = ?`, id.String()))
}

func (r *submissionRepoSQLite) UpdateReview(ctx context.Context, s *Submission, from string) error {
	now := r.now().UTC()
	res, err := r.conn(ctx).ExecContext(ctx, `
		UPDATE review_submission SET status=?, reviewer_id=?, note=?, updated_at=?
		WHERE id = ? AND status = ?`,
		s.Status, s.ReviewerID, s.Note, db.FormatTime(now), s.ID.String(), from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := r.conn(ctx).QueryRowContext(ctx, `SELECT 1 FROM review_submission WHERE id = ?`, s.ID.String()).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrStaleReview
	}
	s.UpdatedAt = now
	return nil
}

func (r *submissionRepoSQLite) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Submission, int, error) {
	where, args := "", []any{}
	if status != "" {
		where, args = " WHERE status = ?", append(args, status)
	}
	var total int
	if err := r.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM review_submission`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + submissionCols + ` FROM review_submission` + where + ` ORDER BY ` + priorityOrder + ` LIMIT ? OFFSET ?`
	rows, err := r.conn(ctx).QueryContext(ctx, query, append(args, limit, offset)...)
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
