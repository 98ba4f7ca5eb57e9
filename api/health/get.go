package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tianzhicdev/dogetionary-sub008/api/types"
)

// Get handles health check requests
// @Summary      Health check
// @Description  Reports service and database health
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Failure      503  {object}  types.HealthResponse
// @Router       /health [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := types.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Database:  map[string]any{"status": "not configured", "connected": false},
		}
		if deps != nil {
			response.Version = deps.Version
		}

		status := http.StatusOK
		if deps != nil && deps.DB != nil && deps.DB.DB != nil {
			if err := deps.DB.HealthCheck(); err != nil {
				response.Status = "unhealthy"
				response.Database = map[string]any{"status": "error", "connected": false, "error": err.Error()}
				status = http.StatusServiceUnavailable
			} else {
				response.Database = map[string]any{"status": "connected", "connected": true}
			}
		}

		c.JSON(status, response)
	}
}
