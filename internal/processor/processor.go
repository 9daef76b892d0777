// Package processor runs every row of a job file through the inference gateway
// and writes the annotated copy next to the original.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cuongbtq/pricing-pipeline/internal/tabular"
)

const (
	// PredictionColumn receives the gateway result for each row
	PredictionColumn = "predicted_price"

	// DefaultOutputPrefix names the output file after the input
	DefaultOutputPrefix = "processed_"
)

// Gateway predicts a price for one row
type Gateway interface {
	Predict(ctx context.Context, row map[string]any) (float64, error)
}

// Config holds processor settings
type Config struct {
	BaseDir      string
	OutputPrefix string
}

// Result summarises one processed file
type Result struct {
	Filename   string
	OutputFile string
	Rows       int
	Predicted  int
	Failed     int
	Duration   time.Duration
}

// Processor loads a file, predicts every row and saves the result
type Processor struct {
	baseDir string
	prefix  string
	gateway Gateway
	logger  *slog.Logger
}

// New creates a Processor
func New(cfg Config, gateway Gateway, logger *slog.Logger) *Processor {
	prefix := cfg.OutputPrefix
	if prefix == "" {
		prefix = DefaultOutputPrefix
	}

	return &Processor{
		baseDir: cfg.BaseDir,
		prefix:  prefix,
		gateway: gateway,
		logger:  logger,
	}
}

// Process handles one job. A load failure aborts the job. Row failures leave the
// row without a prediction and never stop the loop; the output file is written
// whatever the row outcomes. A save failure is returned with the row counts.
func (p *Processor) Process(ctx context.Context, filename string) (*Result, error) {
	inputPath := filepath.Join(p.baseDir, filename)

	dataset, err := tabular.Load(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", inputPath, err)
	}

	p.logger.Info("File loaded",
		slog.String("file", filename),
		slog.Int("rows", dataset.Len()),
	)

	dataset.EnsureColumn(PredictionColumn)

	result := &Result{
		Filename:   filename,
		OutputFile: p.prefix + filename,
		Rows:       dataset.Len(),
	}

	start := time.Now()
	for i, row := range dataset.Rows {
		// a stale value from an earlier run must not survive a failed call
		delete(row, PredictionColumn)

		price, err := p.gateway.Predict(ctx, row)
		if err != nil {
			result.Failed++
			p.logger.Warn("Row prediction failed",
				slog.String("file", filename),
				slog.Int("row", i+1),
				slog.Any("error", err),
			)
			continue
		}

		row[PredictionColumn] = price
		result.Predicted++
	}
	result.Duration = time.Since(start)

	p.logger.Info("Rows processed",
		slog.String("file", filename),
		slog.Int("predicted", result.Predicted),
		slog.Int("failed", result.Failed),
		slog.Duration("elapsed", result.Duration),
	)

	outputPath := filepath.Join(p.baseDir, result.OutputFile)
	if err := tabular.Save(outputPath, dataset); err != nil {
		p.logger.Error("Failed to save output file",
			slog.String("path", outputPath),
			slog.Any("error", err),
		)
		return result, fmt.Errorf("failed to save %s: %w", outputPath, err)
	}

	p.logger.Info("Output file saved",
		slog.String("path", outputPath),
	)

	return result, nil
}
