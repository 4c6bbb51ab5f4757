package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/shared"
)

// RunRepository records extraction runs in the runs table.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = "id, subtree, base_path, status, workers, chunks, files, persisted, duplicates, failed, error, started_at, finished_at"

// Start inserts run with a generated id and status running.
func (r *RunRepository) Start(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = models.RunRunning

	query := `
		INSERT INTO runs (id, subtree, base_path, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, run.ID, run.Subtree, run.BasePath, run.Status, run.StartedAt); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Finish stores the final counters and status of run.
func (r *RunRepository) Finish(ctx context.Context, run *models.Run) error {
	now := time.Now().UTC()
	run.FinishedAt = &now

	query := `
		UPDATE runs
		SET status = ?, workers = ?, chunks = ?, files = ?, persisted = ?, duplicates = ?, failed = ?, error = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		run.Status,
		run.Workers,
		run.Chunks,
		run.Files,
		run.Persisted,
		run.Duplicates,
		run.Failed,
		run.Error,
		now,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}
	return nil
}

// Get retrieves a run by id.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	run, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return run, err
}

// List returns the most recent runs first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

func (r *RunRepository) scan(row scanner) (*models.Run, error) {
	var (
		run        models.Run
		status     string
		finishedAt sql.NullTime
	)

	err := row.Scan(&run.ID, &run.Subtree, &run.BasePath, &status, &run.Workers, &run.Chunks, &run.Files,
		&run.Persisted, &run.Duplicates, &run.Failed, &run.Error, &run.StartedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = models.RunStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
