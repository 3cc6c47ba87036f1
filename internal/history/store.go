package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"realign/internal/regenerate"
)

var (
	// ErrRunNotFound reports a run ID with no stored run.
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousRunID reports a run ID prefix matching several runs.
	ErrAmbiguousRunID = errors.New("ambiguous run id")
)

// Run is one persisted regeneration run.
type Run struct {
	ID          string
	StartedAt   time.Time
	EndedAt     time.Time
	DryRun      bool
	ResultsDir  string
	DatasetDir  string
	EvalCadence int
	Succeeded   int
	Failed      int
	Outcomes    []Outcome
}

// Outcome is one persisted record result.
type Outcome struct {
	Scene        string
	Modality     string
	Variant      string
	Cadence      int
	ArtifactPath string
	Status       string
	Reason       string
	BackupPath   string
	Elapsed      time.Duration
}

// Label renders scene/modality/variant.
func (o Outcome) Label() string {
	return o.Scene + "/" + o.Modality + "/" + o.Variant
}

// FromSummary converts an orchestrator summary into a storable run.
func FromSummary(summary regenerate.Summary, resultsDir, datasetDir string, evalCadence int) Run {
	run := Run{
		ID:          summary.RunID,
		StartedAt:   summary.StartedAt,
		EndedAt:     summary.EndedAt,
		DryRun:      summary.DryRun,
		ResultsDir:  resultsDir,
		DatasetDir:  datasetDir,
		EvalCadence: evalCadence,
		Succeeded:   summary.Succeeded,
		Failed:      summary.Failed,
		Outcomes:    make([]Outcome, 0, len(summary.Outcomes)),
	}
	for _, o := range summary.Outcomes {
		run.Outcomes = append(run.Outcomes, Outcome{
			Scene:        o.Record.Scene,
			Modality:     o.Record.Modality,
			Variant:      o.Record.Variant,
			Cadence:      o.Record.Cadence,
			ArtifactPath: o.Record.ArtifactPath,
			Status:       string(o.Status),
			Reason:       o.Reason,
			BackupPath:   o.BackupPath,
			Elapsed:      o.Elapsed,
		})
	}
	return run
}

// Store manages run history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the history database at path and applies
// migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// RecordRun stores a run and its outcomes in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO runs (
            id, started_at, ended_at, dry_run, results_dir, dataset_dir,
            eval_test_every, succeeded, failed
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		formatTime(run.StartedAt),
		formatTime(run.EndedAt),
		boolToInt(run.DryRun),
		run.ResultsDir,
		run.DatasetDir,
		run.EvalCadence,
		run.Succeeded,
		run.Failed,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, o := range run.Outcomes {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO outcomes (
                run_id, position, scene, modality, variant, test_every,
                artifact_path, status, reason, backup_path, elapsed_ms
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID,
			i,
			o.Scene,
			o.Modality,
			o.Variant,
			o.Cadence,
			o.ArtifactPath,
			o.Status,
			nullableString(o.Reason),
			nullableString(o.BackupPath),
			o.Elapsed.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert outcome %s/%s/%s: %w", o.Scene, o.Modality, o.Variant, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const runColumns = `id, started_at, ended_at, dry_run, results_dir, dataset_dir, eval_test_every, succeeded, failed`

// ListRuns returns up to limit runs, newest first, without outcomes. A limit
// below 1 returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the run whose ID equals or uniquely starts with id, with its
// outcomes.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ORDER BY id LIMIT 2`, id, stripLikeWildcards(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	var matches []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		matches = append(matches, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	switch {
	case len(matches) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case len(matches) > 1 && matches[0].ID != id:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRunID, id)
	}
	run := matches[0]
	if run.Outcomes, err = s.Outcomes(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// Outcomes returns the outcomes of one run in processing order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT scene, modality, variant, test_every, artifact_path, status, reason, backup_path, elapsed_ms
         FROM outcomes WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var (
			o         Outcome
			reason    sql.NullString
			backup    sql.NullString
			elapsedMS int64
		)
		if err := rows.Scan(&o.Scene, &o.Modality, &o.Variant, &o.Cadence, &o.ArtifactPath, &o.Status, &reason, &backup, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Reason = reason.String
		o.BackupPath = backup.String
		o.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}
