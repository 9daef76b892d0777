package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/pricing-pipeline/internal/inference/artifact"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/backend"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/dto"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/encoder"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/gateway"
)

// Predictor runs one prediction; *gateway.Service implements it
type Predictor interface {
	Predict(ctx context.Context, format backend.Format, req *dto.PredictionRequest) (float64, error)
}

// Pinger is a dependency checked by the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Predictor Predictor
	// Pingers are checked by GET /health, keyed by dependency name
	Pingers map[string]Pinger
}

// PredictionHandler serves the prediction endpoints
type PredictionHandler struct {
	logger    *slog.Logger
	predictor Predictor
	pingers   map[string]Pinger
}

// NewPredictionHandler creates a new PredictionHandler instance
func NewPredictionHandler(deps *Dependencies) *PredictionHandler {
	return &PredictionHandler{
		logger:    deps.Logger,
		predictor: deps.Predictor,
		pingers:   deps.Pingers,
	}
}

// Predict handles POST /api/v1/predict/{format}
func (h *PredictionHandler) Predict(format backend.Format) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.PredictionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("Invalid prediction request", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body: " + err.Error()})
			return
		}

		price, err := h.predictor.Predict(c.Request.Context(), format, &req)
		if err != nil {
			status := statusOf(err)
			if status >= http.StatusInternalServerError {
				_ = c.Error(err)
			}
			h.logger.Warn("Prediction failed",
				slog.String("format", string(format)),
				slog.String("model_group", req.ModelGroup),
				slog.Int("status", status),
				slog.String("error", err.Error()),
			)
			c.JSON(status, dto.ErrorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, dto.PredictionResponse{PredictedPrice: price})
	}
}

// Health handles GET /health
func (h *PredictionHandler) Health(c *gin.Context) {
	checks := make(map[string]string, len(h.pingers))
	status := http.StatusOK
	for name, p := range h.pingers {
		if err := p.Ping(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":  state,
		"service": "inference-service",
		"checks":  checks,
	})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, encoder.ErrUnknownCategory),
		errors.Is(err, gateway.ErrUnknownModelGroup):
		return http.StatusUnprocessableEntity
	case errors.Is(err, artifact.ErrNotFound),
		errors.Is(err, backend.ErrUnknownFormat):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
