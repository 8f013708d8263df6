// Package cli provides the startup and shutdown steps shared by
// cmd/spese-api and cmd/spese-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"spese-analytics/internal/config"
	"spese-analytics/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger at the configured level and sets it
// as the slog default. An unknown level falls back to info.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{Level: level, Component: component})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads the .env file and configuration, sets up
// logging, and exits the process when the configuration is invalid.
func LoadAndValidateConfig(component string) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, component)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// NotifyShutdown returns a context cancelled on SIGINT or SIGTERM. The
// returned stop function releases the signal handler.
func NotifyShutdown(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
