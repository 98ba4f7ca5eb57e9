package videos

import (
	"github.com/gin-gonic/gin"

	"github.com/tianzhicdev/dogetionary-sub008/api/types"
)

// RouteMiddleware is applied per endpoint kind.
type RouteMiddleware struct {
	// Upload runs before the batch upload handler
	Upload []gin.HandlerFunc
	// Listing runs before the JSON read handlers
	Listing []gin.HandlerFunc
}

// RegisterRoutes registers video routes.
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies, mw RouteMiddleware) {
	router.POST("/batch-upload", chain(mw.Upload, PostBatchUpload(deps))...)
	router.GET("/:id", GetVideo(deps))
	router.GET("/:id/mappings", chain(mw.Listing, GetMappings(deps))...)
}

func chain(middleware []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, len(middleware)+1)
	handlers = append(handlers, middleware...)
	return append(handlers, handler)
}
