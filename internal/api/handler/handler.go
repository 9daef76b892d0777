package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/pricing-pipeline/internal/api/gateway"
	"github.com/cuongbtq/pricing-pipeline/internal/api/model"
	"github.com/cuongbtq/pricing-pipeline/internal/api/storage"
)

// Publisher queues a file name for the worker; *rabbitmq.Client implements it
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// RunStore reads the run ledger; *storage.Storage implements it
type RunStore interface {
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter storage.RunFilter) ([]model.Run, error)
}

// PredictionForwarder proxies one prediction; *gateway.Client implements it
type PredictionForwarder interface {
	Forward(ctx context.Context, format string, body []byte) (*gateway.Response, error)
}

// HealthChecker is a dependency checked by GET /health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Publisher Publisher
	// Checks are run by GET /health, keyed by dependency name
	Checks map[string]HealthChecker
	// Runs is nil when the run ledger is disabled
	Runs           RunStore
	Gateway        PredictionForwarder
	UploadDir      string
	MaxFileSize    int64
	AllowedExts    []string
	PublishTimeout time.Duration
}

// FileHandler accepts uploads and queues them for processing
type FileHandler struct {
	logger         *slog.Logger
	publisher      Publisher
	dir            string
	maxFileSize    int64
	allowedExts    []string
	publishTimeout time.Duration
}

func NewFileHandler(deps *Dependencies) *FileHandler {
	return &FileHandler{
		logger:         deps.Logger,
		publisher:      deps.Publisher,
		dir:            deps.UploadDir,
		maxFileSize:    deps.MaxFileSize,
		allowedExts:    deps.AllowedExts,
		publishTimeout: deps.PublishTimeout,
	}
}

// RunHandler serves the run history
type RunHandler struct {
	logger *slog.Logger
	runs   RunStore
}

func NewRunHandler(deps *Dependencies) *RunHandler {
	return &RunHandler{
		logger: deps.Logger,
		runs:   deps.Runs,
	}
}

// PredictHandler proxies single predictions to the inference gateway
type PredictHandler struct {
	logger  *slog.Logger
	gateway PredictionForwarder
}

func NewPredictHandler(deps *Dependencies) *PredictHandler {
	return &PredictHandler{
		logger:  deps.Logger,
		gateway: deps.Gateway,
	}
}

// HealthHandler reports the state of the service dependencies
type HealthHandler struct {
	checks map[string]HealthChecker
}

func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{checks: deps.Checks}
}
