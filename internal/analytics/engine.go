package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spese-analytics/internal/core"
)

// DefaultWindowMonths is how many months of history an analysis reads.
const DefaultWindowMonths = 6

// AggregateStore runs grouping queries over a user's records.
type AggregateStore interface {
	Aggregate(ctx context.Context, q core.AggregateQuery) ([]core.AggregateRow, error)
}

// ResultSink publishes a finished analysis and signals completion.
type ResultSink interface {
	Complete(ctx context.Context, userID string, result *core.TrendResult) error
}

// Engine runs trend analyses against the aggregate store.
type Engine struct {
	store        AggregateStore
	sink         ResultSink
	windowMonths int
	now          func() time.Time
}

func NewEngine(store AggregateStore, sink ResultSink, windowMonths int) *Engine {
	if windowMonths <= 0 {
		windowMonths = DefaultWindowMonths
	}
	return &Engine{
		store:        store,
		sink:         sink,
		windowMonths: windowMonths,
		now:          time.Now,
	}
}

// Window returns the date range analysed: the configured number of months
// ending with the current one.
func (e *Engine) Window() core.DateRange {
	current := core.PeriodOf(e.now().UTC())
	return core.DateRange{
		From: current.AddMonths(-(e.windowMonths - 1)).Start(),
		To:   current.AddMonths(1).Start(),
	}
}

// Months lists the months of Window, oldest first.
func (e *Engine) Months() []string {
	first := core.PeriodOf(e.now().UTC()).AddMonths(-(e.windowMonths - 1))
	months := make([]string, e.windowMonths)
	for i := range months {
		months[i] = first.AddMonths(i).String()
	}
	return months
}

// Analyze computes the trend result without publishing it.
func (e *Engine) Analyze(ctx context.Context, userID string) (*core.TrendResult, error) {
	window := e.Window()
	rows, err := e.store.Aggregate(ctx, core.AggregateQuery{
		UserID:  userID,
		Range:   &window,
		GroupBy: core.GroupByCategoryMonth,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate by category and month: %w", err)
	}

	result := Analyze(userID, e.Months(), rows)
	result.GeneratedAt = e.now().UTC()
	return result, nil
}

// Compute analyses and hands the result to the sink, which marks the
// analysis completed. On error nothing is written and the processing lease
// is left to expire.
func (e *Engine) Compute(ctx context.Context, userID string) (*core.TrendResult, error) {
	start := time.Now()

	result, err := e.Analyze(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := e.sink.Complete(ctx, userID, result); err != nil {
		return nil, fmt.Errorf("publish trend result: %w", err)
	}

	slog.InfoContext(ctx, "Spending trends computed",
		"user_id", userID,
		"overall_trend", result.OverallTrend,
		"categories", len(result.CategoryTrends),
		"months", len(result.MonthlyTotals),
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}
