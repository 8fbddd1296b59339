package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health. Every registered dependency must pass.
func Health(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		checks := make(gin.H, len(deps.Checks))

		for name, checker := range deps.Checks {
			if err := checker.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Warn("Health check failed",
					slog.String("dependency", name),
					slog.String("error", err.Error()),
				)
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
			"service": "image-worker-api",
			"checks":  checks,
		})
	}
}
