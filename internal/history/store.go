// Package history persists suite runs in SQLite and derives trends from
// consecutive runs of the same suite.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/phasegate/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the version recorded by schema.sql.
const SchemaVersion = 1

// RunSummary is one recorded suite run.
type RunSummary struct {
	RunID     string
	Suite     string
	Device    string
	Status    models.SuiteStatus
	Counts    models.StatusCounts
	Tokens    int64
	CostUSD   float64
	Duration  time.Duration
	Summary   string
	StartedAt time.Time
}

// PassRate returns passed/total, 0 for an empty run.
func (r RunSummary) PassRate() float64 {
	if r.Counts.Total == 0 {
		return 0
	}
	return float64(r.Counts.Passed) / float64(r.Counts.Total)
}

// Store manages the SQLite run history database
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new Store instance and initializes the database
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !isLocked(err) {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

func isLocked(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// RecordSuite stores a finished suite run with its phases and analyzer scores.
func (s *Store) RecordSuite(ctx context.Context, res *models.SuiteResult) error {
	if res == nil {
		return errors.New("suite result cannot be nil")
	}
	if res.RunID == "" {
		return errors.New("suite result has no run id")
	}

	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if err = s.recordOnce(ctx, res); !isLocked(err) {
			return err
		}
		time.Sleep(10 * time.Millisecond * time.Duration(1<<attempt))
	}
	return err
}

func (s *Store) recordOnce(ctx context.Context, res *models.SuiteResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO suite_runs
		(run_id, suite, device, status, total, passed, failed, unknown, skipped, tokens, cost_usd, duration_ms, summary, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Name, res.Device, string(res.Status),
		res.Counts.Total, res.Counts.Passed, res.Counts.Failed, res.Counts.Unknown, res.Counts.Skipped,
		res.Usage.Total, res.CostUSD, res.Duration().Milliseconds(), res.Summary, res.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert suite run: %w", err)
	}

	for _, p := range res.Phases {
		_, err = tx.ExecContext(ctx, `INSERT INTO phase_results
			(run_id, phase_id, status, verdict, confidence, attempts, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, p.PhaseID, string(p.Status), string(p.Decision.Verdict),
			p.Decision.Confidence, p.Attempts, p.Error, p.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert phase %s: %w", p.PhaseID, err)
		}

		for name, a := range p.Analyzers {
			if a == nil {
				continue
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO analyzer_scores (run_id, phase_id, analyzer, score) VALUES (?, ?, ?, ?)`,
				res.RunID, p.PhaseID, name, a.Score)
			if err != nil {
				return fmt.Errorf("insert analyzer score %s/%s: %w", p.PhaseID, name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs of a suite, newest first. An empty
// device matches every device.
func (s *Store) RecentRuns(ctx context.Context, suite, device string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT run_id, suite, device, status, total, passed, failed, unknown, skipped,
		tokens, cost_usd, duration_ms, COALESCE(summary, ''), started_at
		FROM suite_runs WHERE suite = ?`
	args := []interface{}{suite}
	if device != "" {
		query += ` AND device = ?`
		args = append(args, device)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var status string
		var durationMs int64
		if err := rows.Scan(&r.RunID, &r.Suite, &r.Device, &status,
			&r.Counts.Total, &r.Counts.Passed, &r.Counts.Failed, &r.Counts.Unknown, &r.Counts.Skipped,
			&r.Tokens, &r.CostUSD, &durationMs, &r.Summary, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = models.SuiteStatus(status)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// phaseStatuses returns phase ID -> status for a run.
func (s *Store) phaseStatuses(ctx context.Context, runID string) (map[string]models.PhaseStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT phase_id, status FROM phase_results WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query phases: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.PhaseStatus)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		out[id] = models.PhaseStatus(status)
	}
	return out, rows.Err()
}

// analyzerAverages returns the mean score per analyzer across a run's phases.
func (s *Store) analyzerAverages(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT analyzer, AVG(score) FROM analyzer_scores WHERE run_id = ? GROUP BY analyzer`, runID)
	if err != nil {
		return nil, fmt.Errorf("query analyzer scores: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var avg float64
		if err := rows.Scan(&name, &avg); err != nil {
			return nil, fmt.Errorf("scan analyzer score: %w", err)
		}
		out[name] = avg
	}
	return out, rows.Err()
}
