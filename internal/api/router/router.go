package router

import (
	"github.com/cuongbtq/answer-relay/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, allowedOrigins []string) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(allowedOrigins))

	healthHandler := handler.NewHealthHandler(deps)
	actionHandler := handler.NewActionHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		actions := v1.Group("/actions")
		{
			// GET|POST /api/v1/actions/process - Answer with links
			actions.GET("/process", actionHandler.Process)
			actions.POST("/process", actionHandler.Process)

			// GET|POST /api/v1/actions/process-text - Answer without links
			actions.GET("/process-text", actionHandler.ProcessText)
			actions.POST("/process-text", actionHandler.ProcessText)

			// GET /api/v1/actions/stream - Progress as server-sent events
			actions.GET("/stream", actionHandler.Stream)
		}

		users := v1.Group("/users/:userId")
		{
			// GET /api/v1/users/:userId/jobs - List the owner's jobs
			users.GET("/jobs", jobHandler.ListJobs)

			// GET /api/v1/users/:userId/jobs/:jobId - Get one job
			users.GET("/jobs/:jobId", jobHandler.GetJob)
		}
	}

	return r
}
