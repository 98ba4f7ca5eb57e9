package version

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tianzhicdev/dogetionary-sub008/api/types"
)

// Get handles version requests
// @Summary      Service version
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.VersionResponse
// @Router       /version [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	version := "dev"
	if deps != nil && deps.Version != "" {
		version = deps.Version
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, types.VersionResponse{
			Name:        "Clip Curator Video Backend",
			Version:     version,
			Description: "Stores vocabulary clips and their word mappings",
			Status:      "running",
		})
	}
}
