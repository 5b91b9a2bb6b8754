package db

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) StoreHealth {
	t.Helper()
	var h StoreHealth
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return h
}

func TestSQLiteHealthHandler(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "health.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	now := FormatTime(time.Now())
	for _, row := range [][2]string{{"s1", "active"}, {"s2", "active"}, {"s3", "submitted"}} {
		_, err := db.ExecContext(ctx, `INSERT INTO intake_session (id, program, form_version, patient_id, status, state, created_at, updated_at)
			VALUES (?, 'weight_loss', '1', 'p1', ?, '{}', ?, ?)`, row[0], row[1], now, now)
		if err != nil {
			t.Fatalf("insert session: %v", err)
		}
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	if err := SQLiteHealthHandler(db)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	h := decodeHealth(t, rec)
	if h.Driver != "sqlite" || h.Status != "healthy" {
		t.Errorf("unexpected health: %+v", h)
	}
	if h.ActiveSessions != 2 || h.QueuedSubmissions != 0 {
		t.Errorf("expected 2 active sessions and empty queue, got %d/%d", h.ActiveSessions, h.QueuedSubmissions)
	}

	db.Close()
	rec = httptest.NewRecorder()
	if err := SQLiteHealthHandler(db)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after close, got %d", rec.Code)
	}
	if h := decodeHealth(t, rec); h.Status != "unhealthy" || h.Error == "" {
		t.Errorf("expected unhealthy with error, got %+v", h)
	}
}

func TestOpenSQLite_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "intake.db")
	db, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"intake_session", "review_submission"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s: %v", table, err)
		}
	}

	// Reopening an existing file is idempotent.
	db2, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	db2.Close()
}

func TestFormatParseTime(t *testing.T) {
	in := time.Date(2024, 6, 1, 12, 30, 0, 123, time.FixedZone("EST", -5*3600))
	out, err := ParseTime(FormatTime(in))
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("expected %v, got %v", in, out)
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("expected error for malformed timestamp")
	}
}

func TestSQLTxRunner(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "tx.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	runner := SQLTxRunner{DB: db}
	err = runner.InTx(ctx, func(ctx context.Context) error {
		tx := SQLTxFromContext(ctx)
		if tx == nil {
			t.Fatal("expected transaction in context")
		}
		now := FormatTime(time.Now())
		_, err := tx.ExecContext(ctx, `INSERT INTO intake_session (id, program, form_version, patient_id, state, created_at, updated_at)
			VALUES ('s1', 'weight_loss', '1', 'p1', '{}', ?, ?)`, now, now)
		if err != nil {
			return err
		}
		return context.Canceled
	})
	if err != context.Canceled {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM intake_session`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected rollback, found %d rows", count)
	}
}
