package worker

import (
	"context"
	"log/slog"
	"time"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/cache"
	"spese-analytics/internal/core"
)

// TrendComputer runs a trend analysis and publishes its result.
type TrendComputer interface {
	Compute(ctx context.Context, userID string) (*core.TrendResult, error)
}

// ReportSender delivers the report a send_report job asks for.
type ReportSender interface {
	Send(ctx context.Context, jobID, userID, period, recipient string) error
}

// Dispatcher routes consumed jobs to their handlers.
type Dispatcher struct {
	cache   *cache.Coordinator
	trends  TrendComputer
	reports ReportSender
}

func NewDispatcher(c *cache.Coordinator, trends TrendComputer, reports ReportSender) *Dispatcher {
	return &Dispatcher{cache: c, trends: trends, reports: reports}
}

// HandleJob is an amqp.Handler. Every branch is safe to run more than once.
func (d *Dispatcher) HandleJob(ctx context.Context, job *amqp.Job) error {
	start := time.Now()
	err := d.handle(ctx, job)
	observeJob(job.Type, start, err)
	return err
}

func (d *Dispatcher) handle(ctx context.Context, job *amqp.Job) error {
	userID := job.Payload.UserID

	switch job.Type {
	case amqp.JobNewExpense, amqp.JobUpdateExpense, amqp.JobDeleteExpense:
		// Mutations only drop derived data; the next read recomputes it from
		// the store, so arrival order between mutations does not matter.
		d.cache.InvalidateUser(ctx, userID)
		slog.DebugContext(ctx, "Derived data invalidated",
			"type", job.Type,
			"user_id", userID,
			"expense_id", job.Payload.ExpenseID)
		return nil

	case amqp.JobComputeTrends:
		_, err := d.trends.Compute(ctx, userID)
		return err

	case amqp.JobSendReport:
		return d.reports.Send(ctx, job.ID, userID, job.Payload.Period, job.Payload.Recipient)

	default:
		slog.WarnContext(ctx, "Skipping job of unknown type", "job_id", job.ID, "type", job.Type)
		return nil
	}
}
