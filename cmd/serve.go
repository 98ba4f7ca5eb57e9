package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tianzhicdev/dogetionary-sub008/api"
	"github.com/tianzhicdev/dogetionary-sub008/api/types"
	"github.com/tianzhicdev/dogetionary-sub008/internal/database"
	"github.com/tianzhicdev/dogetionary-sub008/internal/services/videos"
)

var (
	serverHost string
	serverPort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the video backend server",
	Long: `Start the video backend HTTP server with the configured settings.

The backend accepts batch uploads of verified clips with their word
mappings and serves stored videos and mappings back by id.

Example:
  clipcurator serve
  clipcurator serve --port 9090
  clipcurator serve --host 0.0.0.0 --port 8080`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides config)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	host, port := cfg.Server.Host, cfg.Server.Port
	if serverHost != "" {
		host = serverHost
	}
	if serverPort != 0 {
		port = serverPort
	}
	address := fmt.Sprintf("%s:%d", host, port)

	db, err := database.Open(cfg.Database.Path, cfg.Database.Verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()

	server := api.NewServer(address, cfg.Server, logger)
	server.SetDependencies(&types.Dependencies{
		DB:           db,
		VideoService: videos.NewService(videos.NewRepository(db.DB), logger),
		Logger:       logger,
		Version:      Version,
	})
	if err := server.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server error: %w", err)
		}
	}()
	logger.Info("video backend listening", "address", address, "database", cfg.Database.Path)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case runErr = <-serverErr:
		logger.Error("server stopped unexpectedly", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return err
	}

	logger.Info("server gracefully stopped")
	return runErr
}
