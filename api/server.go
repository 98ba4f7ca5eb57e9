package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tianzhicdev/dogetionary-sub008/api/types"
	"github.com/tianzhicdev/dogetionary-sub008/internal/database"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/cache"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/config"
)

// Server represents the HTTP server
type Server struct {
	engine             *gin.Engine
	httpServer         *http.Server
	cfg                config.ServerConfig
	logger             *slog.Logger
	rateLimiters       *sync.Map
	cleanupInitialized sync.Once
	cleanupStop        chan struct{}
	stopOnce           sync.Once
	responses          *cache.Memory

	// Dependencies for handlers
	dependencies *types.Dependencies
}

// NewServer creates a new HTTP server for address using the server settings in cfg
func NewServer(address string, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 60 * time.Second
	}
	maxHeader := cfg.MaxHeaderBytes
	if maxHeader <= 0 {
		maxHeader = 1 << 20
	}

	var responses *cache.Memory
	if cfg.ResponseCacheTTL > 0 {
		responses = cache.NewMemory(cfg.ResponseCacheBytes, time.Minute)
	}

	return &Server{
		engine:       engine,
		responses:    responses,
		cfg:          cfg,
		logger:       logger,
		rateLimiters: &sync.Map{},
		cleanupStop:  make(chan struct{}),
		httpServer: &http.Server{
			Addr:           address,
			Handler:        engine,
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			IdleTimeout:    30 * time.Second,
			MaxHeaderBytes: maxHeader,
		},
	}
}

// SetDatabase sets the database connection
func (s *Server) SetDatabase(db *database.DB) {
	if s.dependencies == nil {
		s.dependencies = &types.Dependencies{}
	}
	s.dependencies.DB = db
}

// SetDependencies sets all handler dependencies
func (s *Server) SetDependencies(deps *types.Dependencies) {
	s.dependencies = deps
}

// Engine returns the Gin engine for testing
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Initialize sets up middleware and routes
func (s *Server) Initialize() error {
	s.setupMiddleware()
	return s.setupRoutes()
}

func (s *Server) setupMiddleware() {
	s.engine.Use(RequestLogger(s.logger))
	s.engine.Use(CORS())
}

func (s *Server) setupRoutes() error {
	if s.dependencies == nil {
		s.dependencies = &types.Dependencies{}
	}
	if s.dependencies.Logger == nil {
		s.dependencies.Logger = s.logger
	}
	opts := RouteOptions{
		RateLimiters:       s.rateLimiters,
		CleanupStop:        s.cleanupStop,
		CleanupInitialized: &s.cleanupInitialized,
		MaxUploadBytes:     s.cfg.MaxUploadBytes,
		RateLimitRPS:       s.cfg.RateLimitRPS,
		RateLimitBurst:     s.cfg.RateLimitBurst,
		ResponseCacheTTL:   s.cfg.ResponseCacheTTL,
	}
	if s.responses != nil {
		opts.ResponseCache = s.responses
	}
	return RegisterRoutes(s.engine, s.dependencies, opts)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.cleanupStop)
		if s.responses != nil {
			s.responses.Stop()
		}
	})
	return s.httpServer.Shutdown(ctx)
}
