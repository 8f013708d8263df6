package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/analytics"
	"spese-analytics/internal/backend"
	"spese-analytics/internal/cli"
	"spese-analytics/internal/config"
	"spese-analytics/internal/log"
	"spese-analytics/internal/progress"
	"spese-analytics/internal/report"
	"spese-analytics/internal/services"
	"spese-analytics/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting spese-analytics worker")

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.NotifyShutdown(context.Background(), logger)
	defer stop()

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startCancel()

	res, err := backend.NewFactory(logger.Logger).Open(startCtx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Failed to close resources", "error", err)
		}
	}()

	// The Sheets client keeps this context for token refreshes.
	deliverer, err := newDeliverer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	tracker := progress.NewTracker(res.Coordinator)
	engine := analytics.NewEngine(res.Repository, tracker, cfg.TrendWindowMonths)
	summaries := services.NewSummaryService(res.Repository, res.Coordinator)
	sender := report.NewSender(report.NewGenerator(summaries, tracker, engine), deliverer, res.Coordinator)
	dispatcher := worker.NewDispatcher(res.Coordinator, engine, sender)

	pool := worker.NewPool(res.Queue, dispatcher.HandleJob,
		amqp.ConsumeOptions{Prefetch: cfg.Prefetch, JobTimeout: cfg.JobTimeout},
		worker.QueueSpec{Name: amqp.QueueEvents, Consumers: cfg.EventsConsumers},
		worker.QueueSpec{Name: amqp.QueueReports, Consumers: cfg.ReportsConsumers},
	)

	scheduler, err := worker.NewScheduler(cfg.ReportSchedule, res.Repository, res.Queue)
	if err != nil {
		return err
	}
	if cfg.MetricsPort != "" {
		metricsSrv := worker.NewMetricsServer(":" + cfg.MetricsPort)
		go func() {
			logger.Info("Serving worker metrics", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	scheduler.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.JobTimeout)
		defer stopCancel()
		scheduler.Stop(stopCtx)
	}()

	logger.Info("Consuming jobs",
		"events_consumers", cfg.EventsConsumers,
		"reports_consumers", cfg.ReportsConsumers,
		"report_schedule", cfg.ReportSchedule)

	// Consumers finish their in-flight job before Run returns.
	if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newDeliverer always logs reports and also appends them to a spreadsheet
// when one is configured.
func newDeliverer(ctx context.Context, cfg *config.Config, logger *log.Logger) (report.Deliverer, error) {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets delivery disabled - no GOOGLE_SPREADSHEET_ID provided")
		return report.LogDeliverer{}, nil
	}

	svc, err := report.NewSheetsService(ctx, report.SheetsConfig{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleReportSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets delivery enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleReportSheetName)
	return report.Multi{
		report.LogDeliverer{},
		report.NewSheetsDeliverer(svc, cfg.GoogleSpreadsheetID, cfg.GoogleReportSheetName),
	}, nil
}
