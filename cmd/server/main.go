// Package main is the entry point for the Frontier portfolio allocation service.
// It serves mean-variance efficient frontiers computed from uploaded price
// histories.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/metrics"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/server"
	"github.com/aristath/frontier/pkg/logger"
)

// getEnv retrieves an environment variable value, returning a fallback if the
// variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// main loads configuration, wires the frontier engine into the HTTP server
// and blocks until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so configuration errors are still reported
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	version := getEnv("VERSION", "dev")
	log.Info().Str("version", version).Msg("Starting Frontier")

	solver := optimization.NewSolver(cfg.Solver.Options())
	service := optimization.NewFrontierService(solver, cfg.Solver.FrontierPoints, cfg.Solver.Workers, log)
	service.SetObserver(metrics.NewSolveRecorder())

	log.Info().
		Int("frontier_points", service.Points()).
		Int("max_iterations", solver.Options().MaxIterations).
		Float64("tolerance", solver.Options().Tolerance).
		Dur("solve_timeout", solver.Options().Timeout).
		Msg("Frontier engine initialized")

	srv := server.New(server.Config{
		Log:     log,
		Config:  cfg,
		Service: service,
		Version: version,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// In-flight computations get up to 10 seconds to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
