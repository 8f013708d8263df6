package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/core"
)

// DefaultReportSchedule runs at 07:00 on the first day of every month.
const DefaultReportSchedule = "0 7 1 * *"

type SubscriptionLister interface {
	ListReportSubscriptions(ctx context.Context) ([]core.ReportSubscription, error)
}

type Publisher interface {
	Publish(ctx context.Context, job *amqp.Job) error
}

// Scheduler enqueues the monthly report of every subscriber on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	subs      SubscriptionLister
	publisher Publisher
	now       func() time.Time
}

func NewScheduler(schedule string, subs SubscriptionLister, publisher Publisher) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultReportSchedule
	}
	s := &Scheduler{
		cron:      cron.New(),
		subs:      subs,
		publisher: publisher,
		now:       time.Now,
	}

	_, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.EnqueueMonthlyReports(context.Background()); err != nil {
			slog.Error("Scheduled report run failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid report schedule %q: %w", schedule, err)
	}

	slog.Info("Report schedule registered", "schedule", schedule)
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Scheduler started")
}

// Stop waits for a running report pass to finish, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Info("Scheduler stopped")
	case <-ctx.Done():
		slog.Warn("Scheduler stop timed out")
	}
}

// EnqueueMonthlyReports publishes a send_report job for the previous month
// for every subscription and returns how many were enqueued. A failed
// publish does not stop the others.
func (s *Scheduler) EnqueueMonthlyReports(ctx context.Context) (int, error) {
	subs, err := s.subs.ListReportSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list report subscriptions: %w", err)
	}

	period := core.PeriodOf(s.now().UTC()).AddMonths(-1).String()
	var (
		enqueued int
		errs     []error
	)
	for _, sub := range subs {
		job := amqp.NewScheduledReportJob(sub.UserID, period, sub.Recipient)
		if err := s.publisher.Publish(ctx, job); err != nil {
			slog.ErrorContext(ctx, "Failed to enqueue monthly report",
				"user_id", sub.UserID, "period", period, "error", err)
			errs = append(errs, fmt.Errorf("user %s: %w", sub.UserID, err))
			continue
		}
		enqueued++
		reportsScheduledTotal.Inc()
	}

	slog.InfoContext(ctx, "Monthly reports enqueued",
		"period", period,
		"subscriptions", len(subs),
		"enqueued", enqueued)
	return enqueued, errors.Join(errs...)
}
