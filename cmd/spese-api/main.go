package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spese-analytics/internal/backend"
	"spese-analytics/internal/cli"
	"spese-analytics/internal/config"
	apphttp "spese-analytics/internal/http"
	"spese-analytics/internal/log"
	"spese-analytics/internal/progress"
	"spese-analytics/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentAPI)

	if err := run(cfg, logger); err != nil {
		logger.Error("API server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.NotifyShutdown(context.Background(), logger)
	defer stop()

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	res, err := backend.NewFactory(logger.Logger).Open(startCtx, cfg)
	startCancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Failed to close resources", "error", err)
		}
	}()

	tracker := progress.NewTracker(res.Coordinator)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Expenses:  services.NewExpenseService(res.Repository, res.Coordinator, res.Queue),
		Summaries: services.NewSummaryService(res.Repository, res.Coordinator),
		Analysis:  services.NewAnalysisService(tracker, res.Queue),
		Reports:   services.NewReportService(res.Repository, res.Queue),
		Checks:    res.Checks(),
		Logger:    logger.WithComponent(log.ComponentHTTP),
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting spese-analytics API", "port", cfg.Port, "cache", cfg.CacheBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Shutdown returns once in-flight requests are done; resources close after.
	<-shutdownDone
	return nil
}
