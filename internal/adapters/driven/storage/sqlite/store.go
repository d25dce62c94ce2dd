package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/strata-qda/strata-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// Store is a SQLite-backed store for pipeline run history.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.strata/data/runs.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".strata", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "runs.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RunStore returns a RunStore interface backed by this store.
func (s *Store) RunStore() driven.RunStore {
	return &runStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Run Store ====================

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// CreateRun records the start of a pipeline run.
func (s *runStore) CreateRun(ctx context.Context, run domain.Run) error {
	if run.ID == "" {
		return domain.ErrInvalidInput
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO runs (id, input_path, output_dir, record_count, status, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.InputPath, run.OutputDir, run.RecordCount,
		string(run.Status), run.Error, run.StartedAt.UTC(), nullTime(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking run insert: %w", err)
	}
	if affected == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *runStore) FinishRun(ctx context.Context, run domain.Run) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE runs SET
			record_count = ?,
			status = ?,
			error = ?,
			completed_at = ?
		WHERE id = ?
	`, run.RecordCount, string(run.Status), run.Error, nullTime(run.CompletedAt), run.ID)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking run update: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveStageRun inserts or updates one stage's execution record.
func (s *runStore) SaveStageRun(ctx context.Context, stageRun domain.StageRun) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO stage_runs
			(run_id, stage, ordinal, model, records_in, records_out, error_count, status, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, stage) DO UPDATE SET
			model = excluded.model,
			records_in = excluded.records_in,
			records_out = excluded.records_out,
			error_count = excluded.error_count,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, stageRun.RunID, string(stageRun.Stage), stageRun.Stage.Ordinal(), stageRun.Model,
		stageRun.RecordsIn, stageRun.RecordsOut, stageRun.ErrorCount,
		string(stageRun.Status), stageRun.StartedAt.UTC(), nullTime(stageRun.CompletedAt))
	if err != nil {
		return fmt.Errorf("saving stage run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *runStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, input_path, output_dir, record_count, status, error, started_at, completed_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *runStore) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unlimited
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, input_path, output_dir, record_count, status, error, started_at, completed_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

// ListStageRuns returns the stage records of one run in stage order.
func (s *runStore) ListStageRuns(ctx context.Context, runID string) ([]domain.StageRun, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT run_id, stage, model, records_in, records_out, error_count, status, started_at, completed_at
		FROM stage_runs WHERE run_id = ?
		ORDER BY ordinal
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying stage runs: %w", err)
	}
	defer rows.Close()

	var stageRuns []domain.StageRun //nolint:prealloc // size unknown from query
	for rows.Next() {
		var sr domain.StageRun
		var stage, status string
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&sr.RunID, &stage, &sr.Model, &sr.RecordsIn, &sr.RecordsOut,
			&sr.ErrorCount, &status, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scanning stage run: %w", err)
		}
		sr.Stage = domain.Stage(stage)
		sr.Status = domain.RunStatus(status)
		if startedAt.Valid {
			sr.StartedAt = startedAt.Time
		}
		if completedAt.Valid {
			sr.CompletedAt = completedAt.Time
		}
		stageRuns = append(stageRuns, sr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stage runs: %w", err)
	}

	return stageRuns, nil
}

// ==================== Helper Functions ====================

// scanRun scans one run row through the given scan function.
func scanRun(scan func(dest ...any) error) (*domain.Run, error) {
	var run domain.Run
	var status string
	var startedAt, completedAt sql.NullTime
	if err := scan(&run.ID, &run.InputPath, &run.OutputDir, &run.RecordCount,
		&status, &run.Error, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	if startedAt.Valid {
		run.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	return &run, nil
}

// nullTime maps the zero time to NULL so unfinished runs stay distinguishable.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
