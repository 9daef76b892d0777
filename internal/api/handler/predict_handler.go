package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxPredictBody = 64 << 10

var proxyFormats = map[string]bool{"native": true, "portable": true, "onnx": true}

// Predict handles POST /api/v1/predict
// Forwards the body to the gateway endpoint chosen by ?format= (default onnx)
func (h *PredictHandler) Predict(c *gin.Context) {
	format := c.DefaultQuery("format", "onnx")
	if !proxyFormats[format] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "format must be native, portable or onnx",
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPredictBody+1))
	if err != nil || len(body) == 0 || len(body) > maxPredictBody {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	res, err := h.gateway.Forward(c.Request.Context(), format, body)
	if err != nil {
		h.logger.Error("Prediction proxy failed", slog.String("format", format), slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Inference service unavailable",
		})
		return
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(res.Status, contentType, res.Body)
}
