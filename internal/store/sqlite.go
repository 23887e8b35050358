package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/bdaycal/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to :memory: is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// StartRun opens a new run in the running state and returns its ID.
func (s *SQLiteStore) StartRun(ctx context.Context, dryRun bool) (string, error) {
	id := uuid.New().String()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, dry_run, started_at)
		VALUES (?, ?, ?, ?)`,
		id, model.RunStatusRunning, boolToInt(dryRun), s.now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("starting run: %w", err)
	}

	return id, nil
}

// RecordEntry appends a record and its outcome to a run.
func (s *SQLiteStore) RecordEntry(
	ctx context.Context,
	runID string,
	rec model.Record,
	outcome string,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_entries (run_id, description, date, outcome, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		runID, rec.Description, rec.Date, outcome, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording entry for run %s: %w", runID, err)
	}
	return nil
}

// FinishRun stores the final counts and marks the run succeeded, or failed
// when runErr is non-nil.
func (s *SQLiteStore) FinishRun(
	ctx context.Context,
	runID string,
	counts model.RunCounts,
	runErr error,
) error {
	status := model.RunStatusSucceeded
	errText := ""
	if runErr != nil {
		status = model.RunStatusFailed
		errText = runErr.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?, error = ?,
			fetched = ?, recorded = ?, duplicates = ?,
			misses = ?, created = ?, skipped = ?,
			finished_at = ?
		WHERE id = ?`,
		status, errText,
		counts.Fetched, counts.Recorded, counts.Duplicates,
		counts.Misses, counts.Created, counts.Skipped,
		s.now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run %s: no such run", runID)
	}

	return nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	query := "SELECT * FROM runs ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var runs []model.Run
	if err := s.db.SelectContext(ctx, &runs, query); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// GetRun retrieves a single run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	var run model.Run
	if err := s.db.GetContext(ctx, &run, "SELECT * FROM runs WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	return &run, nil
}

// ListEntries returns a run's entries in the order they were recorded.
func (s *SQLiteStore) ListEntries(ctx context.Context, runID string) ([]model.RunEntry, error) {
	var entries []model.RunEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM run_entries WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("listing entries for run %s: %w", runID, err)
	}
	return entries, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
