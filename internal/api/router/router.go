package router

import (
	"github.com/cuongbtq/image-worker/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.Health(deps))

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit an image for processing
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with status filter and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job status
			jobs.GET("/:job_id", jobHandler.GetJob)
		}
	}

	return r
}
