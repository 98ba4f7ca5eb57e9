package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/tianzhicdev/dogetionary-sub008/api/health"
	"github.com/tianzhicdev/dogetionary-sub008/api/middleware"
	"github.com/tianzhicdev/dogetionary-sub008/api/types"
	"github.com/tianzhicdev/dogetionary-sub008/api/version"
	"github.com/tianzhicdev/dogetionary-sub008/api/videos"
	_ "github.com/tianzhicdev/dogetionary-sub008/docs/swagger"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/cache"
	videosvc "github.com/tianzhicdev/dogetionary-sub008/internal/services/videos"
)

// RouteOptions carries the shared rate limiter state and request limits
type RouteOptions struct {
	RateLimiters       *sync.Map
	CleanupStop        chan struct{}
	CleanupInitialized *sync.Once
	MaxUploadBytes     int64
	RateLimitRPS       int
	RateLimitBurst     int

	// ResponseCache, when set, serves mapping listings for ResponseCacheTTL
	// and is purged by every successful upload
	ResponseCache    cache.Cache
	ResponseCacheTTL time.Duration
}

// RegisterRoutes registers all API routes
func RegisterRoutes(engine *gin.Engine, deps *types.Dependencies, opts RouteOptions) error {
	if deps == nil {
		return errors.New("dependencies are required")
	}
	if opts.RateLimiters == nil {
		opts.RateLimiters = &sync.Map{}
	}
	if opts.CleanupStop == nil {
		opts.CleanupStop = make(chan struct{})
	}
	if opts.CleanupInitialized == nil {
		opts.CleanupInitialized = &sync.Once{}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 512 << 20
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 20
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 2 * opts.RateLimitRPS
	}

	// Public routes (no rate limiting)
	health.RegisterRoutes(engine, deps)
	version.RegisterRoutes(engine, deps)

	engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})
	engine.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	engine.NoRoute(NotFoundHandler())

	v1 := engine.Group("/api/v1")

	if deps.DB == nil || deps.DB.DB == nil {
		return nil
	}
	if deps.VideoService == nil {
		deps.VideoService = videosvc.NewService(videosvc.NewRepository(deps.DB.DB), deps.Logger)
	}

	videoGroup := v1.Group("/videos")
	videoGroup.Use(PerClientRateLimit(opts.RateLimiters, opts.CleanupStop, opts.CleanupInitialized, opts.RateLimitRPS, opts.RateLimitBurst))
	mw := videos.RouteMiddleware{
		Upload: []gin.HandlerFunc{RequestSizeLimitWithSize(opts.MaxUploadBytes)},
	}
	if opts.ResponseCache != nil {
		mw.Upload = append(mw.Upload, middleware.PurgeOnWrite(opts.ResponseCache))
		mw.Listing = append(mw.Listing, middleware.ResponseCache(opts.ResponseCache, opts.ResponseCacheTTL))
	}
	videos.RegisterRoutes(videoGroup, deps, mw)

	return nil
}

// NotFoundHandler handles 404 errors
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": "The requested endpoint was not found",
			"path":    c.Request.URL.Path,
		})
	}
}
