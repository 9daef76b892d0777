package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Logger(logger))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping?x=1", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "HTTP Request", entry["msg"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, "/ping", entry["path"])
	assert.Equal(t, "x=1", entry["query"])
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		method     string
		wantStatus int
	}{
		{http.MethodOptions, http.StatusNoContent},
		{http.MethodPost, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, "/x", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestTiming(t *testing.T) {
	r := gin.New()
	r.Use(Timing(discardLogger()))
	r.GET("/slow", func(c *gin.Context) {
		time.Sleep(5 * time.Millisecond)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))

	require.Equal(t, http.StatusOK, w.Code)
	elapsed, err := time.ParseDuration(w.Header().Get(ExecutionTimeHeader))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/empty", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get(ExecutionTimeHeader))
}

func TestRateLimit_DelaysInsteadOfRejecting(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(rate.NewLimiter(rate.Every(20*time.Millisecond), 1), discardLogger()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	start := time.Now()
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// the first request uses the burst, the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestRateLimit_IdleLimiterAllowsNoBurst(t *testing.T) {
	// 20 per second with a bucket of one, as the onnx route is configured by default
	limiter := rate.NewLimiter(20, 1)
	time.Sleep(100 * time.Millisecond)

	r := gin.New()
	r.Use(RateLimit(limiter, discardLogger()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	start := time.Now()
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// an idle bucket holds one token, so the other four wait 50ms each
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestRateLimit_CallerGivesUp(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	limiter.Allow()

	r := gin.New()
	r.Use(RateLimit(limiter, discardLogger()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(ctx))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
