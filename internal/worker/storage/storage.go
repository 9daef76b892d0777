package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/pricing-pipeline/internal/worker/domain"
)

// Storage writes job runs to the run ledger
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// RecordRun inserts the run. Recording the same run id twice keeps the first row.
func (s *Storage) RecordRun(ctx context.Context, run *domain.Run) error {
	query := `
		INSERT INTO runs (
			run_id, filename, status, total_rows, predicted_rows, failed_rows,
			output_file, duration_ms, error_message, worker_id, started_at, finished_at
		) VALUES (
			:run_id, :filename, :status, :total_rows, :predicted_rows, :failed_rows,
			:output_file, :duration_ms, :error_message, :worker_id, :started_at, :finished_at
		)
		ON CONFLICT (run_id) DO NOTHING
	`

	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	s.logger.Debug("Run recorded",
		slog.String("run_id", run.RunID),
		slog.String("status", run.Status),
	)

	return nil
}
