package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cuongbtq/pricing-pipeline/internal/inference/backend"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/handler"
	"github.com/cuongbtq/pricing-pipeline/shared/middleware"
)

// Limits bounds the request rate of the tensor route
type Limits struct {
	RequestsPerSecond float64
	Burst             int
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, limits Limits) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS())

	h := handler.NewPredictionHandler(deps)

	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	{
		predict := v1.Group("/predict", middleware.Timing(deps.Logger))
		{
			// POST /api/v1/predict/native - gob model decoded in process
			predict.POST("/native", h.Predict(backend.FormatNative))

			// POST /api/v1/predict/portable - JSON model decoded in process
			predict.POST("/portable", h.Predict(backend.FormatPortable))

			// POST /api/v1/predict/onnx - model executed by RedisAI, rate limited
			limiter := rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), limits.Burst)
			predict.POST("/onnx", middleware.RateLimit(limiter, deps.Logger), h.Predict(backend.FormatONNX))
		}
	}

	return r
}
