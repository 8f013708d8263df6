package services

import (
	"context"
	"fmt"

	"spese-analytics/internal/cache"
	"spese-analytics/internal/core"
)

// SummaryService serves category breakdowns cache-aside: a cached entry is
// authoritative, a miss recomputes from the store and repopulates the cache.
type SummaryService struct {
	store AggregateStore
	cache *cache.Coordinator
}

func NewSummaryService(store AggregateStore, c *cache.Coordinator) *SummaryService {
	return &SummaryService{store: store, cache: c}
}

// MonthlySummary returns the category breakdown of one month.
func (s *SummaryService) MonthlySummary(ctx context.Context, userID string, period core.Period) (core.MonthlySummary, error) {
	if err := period.Validate(); err != nil {
		return core.MonthlySummary{}, err
	}

	key := cache.KeyMonthlySummary(userID, period.String())
	if summary, ok := cache.GetJSON[core.MonthlySummary](ctx, s.cache, key); ok {
		return summary, nil
	}

	r := period.Range()
	rows, err := s.store.Aggregate(ctx, core.AggregateQuery{UserID: userID, Range: &r, GroupBy: core.GroupByCategory})
	if err != nil {
		return core.MonthlySummary{}, fmt.Errorf("aggregate %s: %w", period, err)
	}

	categories, total, count := core.BuildCategoryAggregates(rows)
	summary := core.MonthlySummary{
		UserID:     userID,
		Period:     period.String(),
		TotalCents: total,
		Count:      count,
		Categories: categories,
	}
	cache.SetJSON(ctx, s.cache, key, summary, s.cache.TTLs().MonthlySummary)
	return summary, nil
}

// AnalyticsSummary returns the all-time category breakdown.
func (s *SummaryService) AnalyticsSummary(ctx context.Context, userID string) (core.AnalyticsSummary, error) {
	key := cache.KeyAnalyticsSummary(userID)
	if summary, ok := cache.GetJSON[core.AnalyticsSummary](ctx, s.cache, key); ok {
		return summary, nil
	}

	rows, err := s.store.Aggregate(ctx, core.AggregateQuery{UserID: userID, GroupBy: core.GroupByCategory})
	if err != nil {
		return core.AnalyticsSummary{}, fmt.Errorf("aggregate all time: %w", err)
	}

	categories, total, count := core.BuildCategoryAggregates(rows)
	summary := core.AnalyticsSummary{
		UserID:     userID,
		TotalCents: total,
		Count:      count,
		Categories: categories,
	}
	if len(categories) > 0 {
		summary.TopCategory = categories[0].Category
	}
	cache.SetJSON(ctx, s.cache, key, summary, s.cache.TTLs().AnalyticsSummary)
	return summary, nil
}
