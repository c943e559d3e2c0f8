// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/utils"
)

// DefaultMaxUploadBytes caps multipart request bodies (16 MiB).
const DefaultMaxUploadBytes = 16 << 20

// Config holds application configuration
type Config struct {
	Port               int
	LogLevel           string
	DevMode            bool
	MaxUploadBytes     int64
	CORSAllowedOrigins []string
	Solver             SolverConfig
}

// SolverConfig holds the optimizer and frontier sweep settings
type SolverConfig struct {
	FrontierPoints int
	DefaultAlpha   float64
	MaxIterations  int
	Tolerance      float64
	SolveTimeout   time.Duration
	Workers        int // 0 = logical CPU count
}

// Options converts the solver settings into optimizer options
func (c SolverConfig) Options() optimization.SolverOptions {
	return optimization.SolverOptions{
		MaxIterations: c.MaxIterations,
		Tolerance:     c.Tolerance,
		Timeout:       c.SolveTimeout,
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnvAsInt("PORT", 8000),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		MaxUploadBytes:     int64(getEnvAsInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)),
		CORSAllowedOrigins: utils.ParseOrigins(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),
		Solver: SolverConfig{
			FrontierPoints: getEnvAsInt("FRONTIER_POINTS", optimization.DefaultFrontierPoints),
			DefaultAlpha:   getEnvAsFloat("DEFAULT_ALPHA", optimization.DefaultAlpha),
			MaxIterations:  getEnvAsInt("SOLVER_MAX_ITERATIONS", optimization.DefaultMaxIterations),
			Tolerance:      getEnvAsFloat("SOLVER_TOLERANCE", optimization.DefaultTolerance),
			SolveTimeout:   getEnvAsDuration("SOLVE_TIMEOUT", optimization.DefaultSolveTimeout),
			Workers:        getEnvAsInt("WORKERS", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every setting is within range
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.Solver.FrontierPoints < 2 {
		return fmt.Errorf("FRONTIER_POINTS must be at least 2, got %d", c.Solver.FrontierPoints)
	}
	if err := optimization.ValidateAlpha(c.Solver.DefaultAlpha); err != nil {
		return fmt.Errorf("DEFAULT_ALPHA: %w", err)
	}
	if c.Solver.MaxIterations < 1 {
		return fmt.Errorf("SOLVER_MAX_ITERATIONS must be positive, got %d", c.Solver.MaxIterations)
	}
	if !(c.Solver.Tolerance > 0) {
		return fmt.Errorf("SOLVER_TOLERANCE must be positive, got %v", c.Solver.Tolerance)
	}
	if c.Solver.Workers < 0 {
		return fmt.Errorf("WORKERS must not be negative, got %d", c.Solver.Workers)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("2s", "500ms"). A negative
// duration disables the per-solve deadline.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
