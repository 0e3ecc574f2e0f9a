package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/pogocls/internal/config"
	"github.com/MeKo-Tech/pogocls/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for the classification API",
		Long: `Start an HTTP server that classifies text-line images.

The server provides the following endpoints:
  POST /classify     - Classify uploaded images (multipart field "image")
  GET  /ws/classify  - Streaming classification over WebSocket
  GET  /health       - Health check endpoint
  GET  /models       - List known classifier models
  GET  /metrics      - Prometheus metrics

Examples:
  pogocls serve
  pogocls serve --port 8080
  pogocls serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
		SilenceUsage: true,
		RunE:         runServeCommand,
	}

	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("max-images", 64, "maximum images per request")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")

	serveCmd.Flags().String("model", "", "path to the classifier model (overrides default)")
	serveCmd.Flags().Float64("threshold", 0, "rotation confidence threshold (0..1, default from config)")
	serveCmd.Flags().Bool("gpu", true, "prefer CUDA when available")

	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 60, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 1000, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 10000, "maximum requests per day per client")
	serveCmd.Flags().Int("max-images-per-day", 100000, "maximum images classified per day per client")

	return serveCmd
}

// configToServerConfig maps the centralized configuration to server.Config,
// letting explicitly set flags win.
func configToServerConfig(cfg *config.Config, cmd *cobra.Command) (server.Config, int) {
	flags := cmd.Flags()
	overrideString := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	overrideInt := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	overrideBool := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}

	srv := cfg.Server
	overrideString("host", &srv.Host)
	overrideInt("port", &srv.Port)
	overrideString("cors-origin", &srv.CORSOrigin)
	overrideInt("max-upload-size", &srv.MaxUploadMB)
	overrideInt("max-images", &srv.MaxImages)
	overrideInt("timeout", &srv.TimeoutSec)
	overrideInt("shutdown-timeout", &srv.ShutdownTimeout)

	rl := srv.RateLimit
	overrideBool("rate-limit-enabled", &rl.Enabled)
	overrideInt("requests-per-minute", &rl.RequestsPerMinute)
	overrideInt("requests-per-hour", &rl.RequestsPerHour)
	overrideInt("max-requests-per-day", &rl.MaxRequestsPerDay)
	overrideInt("max-images-per-day", &rl.MaxImagesPerDay)

	overrideString("model", &cfg.Classifier.ModelPath)
	overrideBool("gpu", &cfg.GPU.Enabled)
	if flags.Changed("threshold") {
		cfg.Classifier.Threshold, _ = flags.GetFloat64("threshold")
	}

	return server.Config{
		Host:             srv.Host,
		Port:             srv.Port,
		CORSOrigin:       srv.CORSOrigin,
		MaxUploadMB:      int64(srv.MaxUploadMB),
		MaxImages:        srv.MaxImages,
		TimeoutSec:       srv.TimeoutSec,
		ClassifierConfig: cfg.ToClassifierConfig(),
		RateLimit: server.RateLimitConfig{
			Enabled:           rl.Enabled,
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			MaxRequestsPerDay: rl.MaxRequestsPerDay,
			MaxImagesPerDay:   rl.MaxImagesPerDay,
		},
	}, srv.ShutdownTimeout
}

func runServeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	serverConfig, shutdownTimeout := configToServerConfig(cfg, cmd)
	if serverConfig.Port < 1 || serverConfig.Port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", serverConfig.Port)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	clsServer, err := server.NewServer(serverConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	mux := http.NewServeMux()
	clsServer.SetupRoutes(mux)

	timeout := time.Duration(serverConfig.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
	}

	go func() {
		slog.Info("Starting classification server", "host", serverConfig.Host, "port", serverConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	// The classifier is released only after in-flight requests have drained
	if err := clsServer.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}

	slog.Info("Graceful shutdown completed")
	return nil
}
