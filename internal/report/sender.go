package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spese-analytics/internal/cache"
	"spese-analytics/internal/core"
)

// Sender generates and delivers reports at most once per user, period and
// recipient while the sent marker lives.
type Sender struct {
	generator *Generator
	deliverer Deliverer
	cache     *cache.Coordinator
}

func NewSender(generator *Generator, deliverer Deliverer, c *cache.Coordinator) *Sender {
	return &Sender{generator: generator, deliverer: deliverer, cache: c}
}

// Send delivers the report of period (YYYY-MM) requested by job jobID. A
// redelivery of a job whose report already went out is a no-op; a new
// request for the same period carries a new job ID and is delivered again.
func (s *Sender) Send(ctx context.Context, jobID, userID, period, recipient string) error {
	p, err := core.ParsePeriod(period)
	if err != nil {
		return err
	}

	marker := cache.KeyReportSent(userID, jobID)
	if _, sent := s.cache.Get(ctx, marker); sent {
		slog.InfoContext(ctx, "Report already sent, skipping",
			"job_id", jobID, "user_id", userID, "period", p.String(), "recipient", recipient)
		return nil
	}

	r, err := s.generator.Build(ctx, userID, p, recipient)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	if err := s.deliverer.Deliver(ctx, r); err != nil {
		return fmt.Errorf("deliver report: %w", err)
	}

	s.cache.Set(ctx, marker, []byte(r.GeneratedAt.Format(time.RFC3339)), s.cache.TTLs().ReportSent)
	return nil
}
