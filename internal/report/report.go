// Package report builds the monthly spending report of a user and hands it to
// a delivery channel.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spese-analytics/internal/core"
)

// Report is the delivered document: one month's category breakdown plus the
// latest spending trends.
type Report struct {
	UserID      string              `json:"user_id"`
	Period      string              `json:"period"`
	Recipient   string              `json:"recipient"`
	GeneratedAt time.Time           `json:"generated_at"`
	Summary     core.MonthlySummary `json:"summary"`
	Trends      *core.TrendResult   `json:"trends"`
}

type SummaryReader interface {
	MonthlySummary(ctx context.Context, userID string, period core.Period) (core.MonthlySummary, error)
}

// TrendReader returns the cached trend result, if any.
type TrendReader interface {
	Result(ctx context.Context, userID string) (*core.TrendResult, bool)
}

// TrendAnalyzer computes trends directly without touching the cache.
type TrendAnalyzer interface {
	Analyze(ctx context.Context, userID string) (*core.TrendResult, error)
}

type Generator struct {
	summaries SummaryReader
	trends    TrendReader
	analyzer  TrendAnalyzer
	now       func() time.Time
}

func NewGenerator(summaries SummaryReader, trends TrendReader, analyzer TrendAnalyzer) *Generator {
	return &Generator{
		summaries: summaries,
		trends:    trends,
		analyzer:  analyzer,
		now:       time.Now,
	}
}

// Build assembles the report for a period. A cached trend result is reused;
// otherwise trends are analysed on the spot and not cached, leaving the
// analysis state machine untouched.
func (g *Generator) Build(ctx context.Context, userID string, period core.Period, recipient string) (*Report, error) {
	summary, err := g.summaries.MonthlySummary(ctx, userID, period)
	if err != nil {
		return nil, fmt.Errorf("monthly summary %s: %w", period, err)
	}

	trends, ok := g.trends.Result(ctx, userID)
	if !ok {
		slog.DebugContext(ctx, "No cached trends for report, analysing directly", "user_id", userID)
		trends, err = g.analyzer.Analyze(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("analyse trends: %w", err)
		}
	}

	return &Report{
		UserID:      userID,
		Period:      period.String(),
		Recipient:   recipient,
		GeneratedAt: g.now().UTC(),
		Summary:     summary,
		Trends:      trends,
	}, nil
}
