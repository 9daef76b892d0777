package router

import (
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/pricing-pipeline/internal/api/handler"
	"github.com/cuongbtq/pricing-pipeline/shared/middleware"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()
	if deps.MaxFileSize > 0 {
		r.MaxMultipartMemory = deps.MaxFileSize
	}

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS())

	r.GET("/health", handler.NewHealthHandler(deps).Health)

	files := handler.NewFileHandler(deps)
	runs := handler.NewRunHandler(deps)
	predict := handler.NewPredictHandler(deps)

	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/files - upload a file and queue it for processing
		v1.POST("/files", files.Upload)

		// POST /api/v1/predict - single prediction through the inference gateway
		v1.POST("/predict", middleware.Timing(deps.Logger), predict.Predict)

		runGroup := v1.Group("/runs")
		{
			// GET /api/v1/runs - list runs with filtering and pagination
			runGroup.GET("", runs.ListRuns)

			// GET /api/v1/runs/:run_id - run details
			runGroup.GET("/:run_id", runs.GetRun)
		}
	}

	return r
}
