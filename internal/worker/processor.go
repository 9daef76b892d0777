package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/pricing-pipeline/internal/processor"
	"github.com/cuongbtq/pricing-pipeline/internal/worker/domain"
)

const recordTimeout = 5 * time.Second

// processJob runs one job and reports its outcome. Errors and panics stop here.
func (c *Consumer) processJob(ctx context.Context, delivery amqp.Delivery) (run *domain.Run) {
	job := domain.Job{
		DeliveryTag: delivery.DeliveryTag,
		ReceivedAt:  time.Now(),
	}
	run = &domain.Run{
		RunID:     uuid.NewString(),
		WorkerID:  c.workerID,
		StartedAt: job.ReceivedAt,
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Job panicked",
				slog.String("file", job.Filename),
				slog.Uint64("delivery_tag", job.DeliveryTag),
				slog.Any("panic", r),
			)
			run.Status = domain.RunStatusFailed
			run.ErrorMessage = fmt.Sprintf("panic: %v", r)
		}
		run.FinishedAt = time.Now()
		run.DurationMs = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	}()

	filename, err := domain.ParseFilename(delivery.Body)
	if err != nil {
		c.logger.Warn("Dropping message with invalid payload",
			slog.Uint64("delivery_tag", job.DeliveryTag),
			slog.Int("body_size", len(delivery.Body)),
			slog.Any("error", err),
		)
		run.Filename = printable(delivery.Body, 255)
		run.Status = domain.RunStatusDropped
		run.ErrorMessage = err.Error()
		return run
	}
	job.Filename = filename
	run.Filename = filename

	c.logger.Info("Processing job",
		slog.String("file", filename),
		slog.Uint64("delivery_tag", job.DeliveryTag),
	)

	// a started job runs to completion on shutdown, bounded only by the job timeout
	jobCtx := context.WithoutCancel(ctx)
	if c.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, c.jobTimeout)
		defer cancel()
	}

	result, err := c.processor.Process(jobCtx, filename)
	applyResult(run, result, err)

	if err != nil {
		c.logger.Error("Job processing failed",
			slog.String("file", filename),
			slog.Any("error", err),
		)
		return run
	}

	c.logger.Info("Job completed",
		slog.String("file", filename),
		slog.String("status", run.Status),
		slog.Int("rows", result.Rows),
		slog.Int("predicted", result.Predicted),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration),
	)

	return run
}

func applyResult(run *domain.Run, result *processor.Result, err error) {
	if result != nil {
		run.TotalRows = result.Rows
		run.PredictedRows = result.Predicted
		run.FailedRows = result.Failed
		run.OutputFile = result.OutputFile
	}

	switch {
	case err != nil:
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = err.Error()
	case result != nil && result.Failed > 0:
		run.Status = domain.RunStatusPartial
	default:
		run.Status = domain.RunStatusCompleted
	}
}

// recordRun writes the run to the ledger; failures are only logged
func (c *Consumer) recordRun(ctx context.Context, run *domain.Run) {
	if c.recorder == nil {
		return
	}

	// the job is over, shutdown must not lose its record
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := c.recorder.RecordRun(recordCtx, run); err != nil {
		c.logger.Error("Failed to record run",
			slog.String("run_id", run.RunID),
			slog.String("file", run.Filename),
			slog.Any("error", err),
		)
	}
}

// printable makes a rejected body safe to store as text, cut to at most n bytes
func printable(body []byte, n int) string {
	s := strings.ReplaceAll(strings.ToValidUTF8(string(body), "?"), "\x00", "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
