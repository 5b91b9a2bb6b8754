package db

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// backlogQuery counts the work the intake service is holding: sessions a
// patient has not finished and submissions no clinician has claimed.
const backlogQuery = `SELECT
	(SELECT COUNT(*) FROM intake_session WHERE status = 'active'),
	(SELECT COUNT(*) FROM review_submission WHERE status = 'queued')`

// StoreHealth is the /health/db payload for either store driver.
type StoreHealth struct {
	Driver            string      `json:"driver"`
	Status            string      `json:"status"`
	Error             string      `json:"error,omitempty"`
	ActiveSessions    int64       `json:"active_sessions"`
	QueuedSubmissions int64       `json:"queued_submissions"`
	Pool              interface{} `json:"pool"`
}

// PoolStats represents PostgreSQL connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// SQLPoolStats is the database/sql view of the SQLite connection.
type SQLPoolStats struct {
	OpenConns int `json:"open_conns"`
	InUse     int `json:"in_use"`
	Idle      int `json:"idle"`
}

// HealthHandler reports PostgreSQL reachability and the intake backlog.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return healthHandler("postgres", func(ctx context.Context, h *StoreHealth) error {
		h.Pool = GetPoolStats(pool)
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		return pool.QueryRow(ctx, backlogQuery).Scan(&h.ActiveSessions, &h.QueuedSubmissions)
	})
}

// SQLiteHealthHandler reports whether the SQLite store answers queries and
// the intake backlog it holds.
func SQLiteHealthHandler(db *sql.DB) echo.HandlerFunc {
	return healthHandler("sqlite", func(ctx context.Context, h *StoreHealth) error {
		stats := db.Stats()
		h.Pool = SQLPoolStats{OpenConns: stats.OpenConnections, InUse: stats.InUse, Idle: stats.Idle}
		return db.QueryRowContext(ctx, backlogQuery).Scan(&h.ActiveSessions, &h.QueuedSubmissions)
	})
}

func healthHandler(driver string, check func(context.Context, *StoreHealth) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		h := &StoreHealth{Driver: driver, Status: "healthy"}
		if err := check(ctx, h); err != nil {
			h.Status, h.Error = "unhealthy", err.Error()
			return c.JSON(http.StatusServiceUnavailable, h)
		}
		return c.JSON(http.StatusOK, h)
	}
}
