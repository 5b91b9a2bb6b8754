package intake

import (
	"context"
	"database/sql"
	"encoding/json"
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

type sessionRepoSQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepoSQLite stores sessions in the single-file SQLite database
// opened by db.OpenSQLite.
func NewSessionRepoSQLite(sqlDB *sql.DB) SessionRepository {
	return &sessionRepoSQLite{db: sqlDB, now: time.Now}
}

func (r *sessionRepoSQLite) conn(ctx context.Context) sqlQueryable {
	if tx := db.SQLTxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db
}

func (r *sessionRepoSQLite) scanSession(row rowScanner) (*Session, error) {
	var s Session
	var id, state, created, updated string
	err := row.Scan(&id, &s.Program, &s.FormVersion, &s.PatientID, &s.Status,
		&state, &s.VersionID, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse session id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(state), &s.State); err != nil {
		return nil, fmt.Errorf("decode session state %s: %w", id, err)
	}
	if s.CreatedAt, err = db.ParseTime(created); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = db.ParseTime(updated); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepoSQLite) Create(ctx context.Context, s *Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	state, err := json.Marshal(s.State)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	now := r.now().UTC()
	_, err = r.conn(ctx).ExecContext(ctx, `
		INSERT INTO intake_session (id, program, form_version, patient_id, status, state, version_id, created_at, updated_at)
		VALUES (?,?,?,?,?,?,1,?,?)`,
		s.ID.String(), s.Program, s.FormVersion, s.PatientID, s.Status, string(state),
		db.FormatTime(now), db.FormatTime(now))
	if err != nil {
		return err
	}
	s.VersionID = 1
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

func (r *sessionRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return r.scanSession(r.conn(ctx).QueryRowContext(ctx, `SELECT `+sessionCols+` FROM intake_session WHERE id = ?`, id.String()))
}

func (r *sessionRepoSQLite) Update(ctx context.Context, s *Session) error {
	state, err := json.Marshal(s.State)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	now := r.now().UTC()
	res, err := r.conn(ctx).ExecContext(ctx, `
		UPDATE intake_session SET form_version=?, status=?, state=?,
			version_id=version_id+1, updated_at=?
		WHERE id = ? AND version_id = ?`,
		s.FormVersion, s.Status, string(state), db.FormatTime(now), s.ID.String(), s.VersionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := r.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM intake_session WHERE id = ?`, s.ID.String()).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrConflict
		}
		return ErrNotFound
	}
	s.VersionID++
	s.UpdatedAt = now
	return nil
}

func (r *sessionRepoSQLite) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Session, int, error) {
	var total int
	if err := r.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM intake_session WHERE patient_id = ?`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).QueryContext(ctx, `SELECT `+sessionCols+` FROM intake_session WHERE patient_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}
