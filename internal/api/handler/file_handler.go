package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/pricing-pipeline/internal/api/domain"
	"github.com/cuongbtq/pricing-pipeline/internal/api/dto"
	workerdomain "github.com/cuongbtq/pricing-pipeline/internal/worker/domain"
)

// Upload handles POST /api/v1/files
// Saves the file into the shared directory and queues its name for the worker
func (h *FileHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.logger.Warn("Upload without file", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "No file provided",
		})
		return
	}

	name, err := h.validate(file.Filename, file.Size)
	if err != nil {
		h.logger.Warn("Upload rejected",
			slog.String("filename", file.Filename),
			slog.String("error", err.Error()),
		)
		status := http.StatusBadRequest
		if file.Size > h.maxFileSize {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{
			"error": err.Error(),
		})
		return
	}

	if err := c.SaveUploadedFile(file, filepath.Join(h.dir, name)); err != nil {
		h.logger.Error("Failed to save file", slog.String("filename", name), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save file",
		})
		return
	}

	ctx := c.Request.Context()
	if h.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.publishTimeout)
		defer cancel()
	}

	if err := h.publisher.PublishWithRetry(ctx, []byte(name), "text/plain"); err != nil {
		h.logger.Error("Failed to queue file", slog.String("filename", name), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to send message to RabbitMQ",
		})
		return
	}

	h.logger.Info("File queued",
		slog.String("filename", name),
		slog.Int64("size", file.Size),
	)

	c.JSON(http.StatusOK, dto.UploadResponse{
		Filename: name,
		Size:     file.Size,
		Status:   "queued",
	})
}

// validate returns the name the file is stored and queued under
func (h *FileHandler) validate(filename string, size int64) (string, error) {
	// browsers may send a client side path
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))

	if _, err := workerdomain.ParseFilename([]byte(name)); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidFile, err)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !slices.Contains(h.allowedExts, ext) {
		return "", fmt.Errorf("%w: extension %q is not one of %v", domain.ErrInvalidFile, ext, h.allowedExts)
	}

	if size > h.maxFileSize {
		return "", fmt.Errorf("%w: %d bytes exceeds the limit of %d", domain.ErrInvalidFile, size, h.maxFileSize)
	}

	return name, nil
}
