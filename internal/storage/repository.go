// Package storage keeps the history of transaction refresh runs in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

// RunStatus is the outcome of a refresh run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

var ErrNoRuns = errors.New("no refresh runs recorded")

// RefreshRun is one execution of the refresh job.
type RefreshRun struct {
	ID               string
	Trigger          string // "schedule", "manual", "cli"
	StartedAt        time.Time
	FinishedAt       time.Time
	Status           RunStatus
	TransactionCount int
	TotalAmount      decimal.Decimal
	ErrorKind        string
	ErrorMessage     string
}

// Duration is how long the run took.
func (r RefreshRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("Refresh run store ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RecordRun stores a finished run, assigning an id when it has none.
func (r *SQLiteRepository) RecordRun(ctx context.Context, run RefreshRun) (RefreshRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status != RunSucceeded && run.Status != RunFailed {
		return run, fmt.Errorf("invalid run status %q", run.Status)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_runs
			(id, trigger_source, started_at, finished_at, status, transaction_count, total_amount, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Trigger,
		formatTime(run.StartedAt), formatTime(run.FinishedAt),
		string(run.Status), run.TransactionCount, run.TotalAmount.String(),
		run.ErrorKind, run.ErrorMessage,
	)
	if err != nil {
		return run, fmt.Errorf("insert refresh run: %w", err)
	}

	slog.DebugContext(ctx, "Refresh run recorded", "run_id", run.ID, "status", run.Status)
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (r *SQLiteRepository) RecentRuns(ctx context.Context, limit int) ([]RefreshRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trigger_source, started_at, finished_at, status, transaction_count, total_amount, error_kind, error_message
		FROM refresh_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query refresh runs: %w", err)
	}
	defer rows.Close()

	var runs []RefreshRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the most recent run, or ErrNoRuns.
func (r *SQLiteRepository) LastRun(ctx context.Context) (RefreshRun, error) {
	runs, err := r.RecentRuns(ctx, 1)
	if err != nil {
		return RefreshRun{}, err
	}
	if len(runs) == 0 {
		return RefreshRun{}, ErrNoRuns
	}
	return runs[0], nil
}

// PruneBefore deletes runs that started before cutoff and returns how many.
func (r *SQLiteRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_runs WHERE started_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune refresh runs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RefreshRun, error) {
	var (
		run                 RefreshRun
		started, finished   string
		status, totalAmount string
	)
	if err := s.Scan(&run.ID, &run.Trigger, &started, &finished, &status,
		&run.TransactionCount, &totalAmount, &run.ErrorKind, &run.ErrorMessage); err != nil {
		return run, fmt.Errorf("scan refresh run: %w", err)
	}
	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return run, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return run, fmt.Errorf("parse finished_at: %w", err)
	}
	if run.TotalAmount, err = decimal.NewFromString(totalAmount); err != nil {
		return run, fmt.Errorf("parse total_amount: %w", err)
	}
	run.Status = RunStatus(status)
	return run, nil
}

// formatTime stores UTC with fixed-width nanoseconds so that text order
// matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
