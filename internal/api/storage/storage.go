package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/pricing-pipeline/internal/api/domain"
	"github.com/cuongbtq/pricing-pipeline/internal/api/model"
)

const runColumns = `
	run_id, filename, status, total_rows, predicted_rows, failed_rows,
	output_file, duration_ms, error_message, worker_id, started_at, finished_at`

// Storage reads the run ledger
type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
	}
}

func (s *Storage) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	query := `SELECT` + runColumns + `
		FROM runs
		WHERE run_id = $1
	`

	err := s.db.GetContext(ctx, &run, query, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

type RunFilter struct {
	Filename string
	Status   string
	PageSize int
	Cursor   *RunCursor
}

// RunCursor is the position after the last run of a page
type RunCursor struct {
	StartedAt time.Time
	RunID     string
}

// ListRuns returns runs newest first, at most PageSize+1 of them so the
// caller can tell whether another page exists
func (s *Storage) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT` + runColumns + `
		FROM runs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Filename != "" {
		query += fmt.Sprintf(" AND filename = $%d", argIdx)
		args = append(args, filter.Filename)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (started_at, run_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.StartedAt, filter.Cursor.RunID)
		argIdx += 2
	}

	query += " ORDER BY started_at DESC, run_id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var runs []model.Run
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}
