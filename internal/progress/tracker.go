// Package progress tracks asynchronous trend analyses through the cache.
//
// The state of a user's analysis is derived from two entries: a short-lived
// processing lease and a longer-lived result. A result always wins over a
// lease, and an expired lease without a result reads as not started, so a
// crashed computation heals itself on the next trigger.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"spese-analytics/internal/cache"
	"spese-analytics/internal/core"
)

type Tracker struct {
	cache *cache.Coordinator
	now   func() time.Time
}

func NewTracker(c *cache.Coordinator) *Tracker {
	return &Tracker{cache: c, now: time.Now}
}

// TryStart acquires the processing lease for userID. It returns false when a
// lease is already held.
func (t *Tracker) TryStart(ctx context.Context, userID string) (bool, error) {
	marker := []byte(t.now().UTC().Format(time.RFC3339))
	ok, err := t.cache.SetIfAbsent(ctx, cache.KeyTrendLease(userID), marker, t.cache.TTLs().AnalysisLease)
	if err != nil {
		return false, fmt.Errorf("acquire analysis lease: %w", err)
	}
	return ok, nil
}

// Complete stores the result and then clears the lease. When the result
// cannot be written the lease is kept and the error returned, so the job is
// retried and the status stays processing until the lease expires.
func (t *Tracker) Complete(ctx context.Context, userID string, result *core.TrendResult) error {
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode trend result: %w", err)
	}
	if err := t.cache.Put(ctx, cache.KeyTrendResult(userID), b, t.cache.TTLs().TrendResult); err != nil {
		return fmt.Errorf("store trend result: %w", err)
	}
	t.cache.Delete(ctx, cache.KeyTrendLease(userID))
	slog.InfoContext(ctx, "Trend analysis completed", "user_id", userID, "bytes", len(b))
	return nil
}

// Release drops the lease without writing a result.
func (t *Tracker) Release(ctx context.Context, userID string) {
	t.cache.Delete(ctx, cache.KeyTrendLease(userID))
}

// Reset removes the previous result so a new cycle reports processing.
func (t *Tracker) Reset(ctx context.Context, userID string) {
	t.cache.Delete(ctx, cache.KeyTrendResult(userID))
}

// Result returns the cached trend result, if any.
func (t *Tracker) Result(ctx context.Context, userID string) (*core.TrendResult, bool) {
	res, ok := cache.GetJSON[core.TrendResult](ctx, t.cache, cache.KeyTrendResult(userID))
	if !ok {
		return nil, false
	}
	return &res, true
}

// Status reports completed, processing or not started, in that priority.
func (t *Tracker) Status(ctx context.Context, userID string) core.AnalysisStatus {
	if res, ok := t.Result(ctx, userID); ok {
		return core.AnalysisStatus{State: core.AnalysisCompleted, Data: res}
	}
	if _, ok := t.cache.Get(ctx, cache.KeyTrendLease(userID)); ok {
		return core.AnalysisStatus{State: core.AnalysisProcessing}
	}
	return core.AnalysisStatus{State: core.AnalysisNotStarted}
}
