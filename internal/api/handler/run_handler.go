package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/pricing-pipeline/internal/api/domain"
	"github.com/cuongbtq/pricing-pipeline/internal/api/dto"
	"github.com/cuongbtq/pricing-pipeline/internal/api/model"
	"github.com/cuongbtq/pricing-pipeline/internal/api/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetRun handles GET /api/v1/runs/:run_id
func (h *RunHandler) GetRun(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrLedgerDisabled.Error()})
		return
	}

	runID := c.Param("run_id")
	if _, err := uuid.Parse(runID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "run_id must be a valid UUID",
		})
		return
	}

	run, err := h.runs.GetRun(c.Request.Context(), runID)
	if errors.Is(err, domain.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Run not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get run", slog.String("run_id", runID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get run",
		})
		return
	}

	c.JSON(http.StatusOK, toRunDTO(run))
}

// ListRuns handles GET /api/v1/runs
// Lists runs newest first with optional filtering and cursor pagination
func (h *RunHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrLedgerDisabled.Error()})
		return
	}

	var req dto.ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	if req.Status != "" && !domain.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status",
		})
		return
	}

	cursor, err := DecodeRunCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), storage.RunFilter{
		Filename: req.Filename,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list runs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list runs",
		})
		return
	}

	hasMore := len(runs) > req.PageSize
	if hasMore {
		runs = runs[:req.PageSize]
	}

	resp := dto.ListRunsResponse{Runs: make([]dto.RunDTO, len(runs))}
	for i := range runs {
		resp.Runs[i] = toRunDTO(&runs[i])
	}

	if hasMore {
		last := runs[len(runs)-1]
		resp.NextCursor = EncodeRunCursor(&storage.RunCursor{
			StartedAt: last.StartedAt,
			RunID:     last.RunID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func toRunDTO(run *model.Run) dto.RunDTO {
	return dto.RunDTO{
		RunID:         run.RunID,
		Filename:      run.Filename,
		Status:        run.Status,
		TotalRows:     run.TotalRows,
		PredictedRows: run.PredictedRows,
		FailedRows:    run.FailedRows,
		OutputFile:    run.OutputFile,
		DurationMs:    run.DurationMs,
		ErrorMessage:  run.ErrorMessage,
		WorkerID:      run.WorkerID,
		StartedAt:     run.StartedAt.Format(time.RFC3339Nano),
		FinishedAt:    run.FinishedAt.Format(time.RFC3339Nano),
	}
}
