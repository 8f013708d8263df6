package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// TTLs holds the lifetime of every cached value category.
type TTLs struct {
	MonthlySummary   time.Duration
	AnalyticsSummary time.Duration
	TrendResult      time.Duration
	AnalysisLease    time.Duration
	ReportSent       time.Duration
}

// DefaultTTLs returns the standard lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		MonthlySummary:   time.Hour,
		AnalyticsSummary: time.Hour,
		TrendResult:      24 * time.Hour,
		AnalysisLease:    5 * time.Minute,
		ReportSent:       7 * 24 * time.Hour,
	}
}

// Coordinator is the single entry point for derived values. It never fails a
// caller because of the cache: a substrate error reads as a miss and writes
// are logged and dropped.
type Coordinator struct {
	store Store
	ttls  TTLs
}

func NewCoordinator(store Store, ttls TTLs) *Coordinator {
	return &Coordinator{store: store, ttls: ttls}
}

// TTLs returns the configured lifetimes.
func (c *Coordinator) TTLs() TTLs { return c.ttls }

// Get returns the value under key, or false when it is absent, expired or
// the substrate is unavailable.
func (c *Coordinator) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			cacheErrorsTotal.WithLabelValues("get").Inc()
			slog.WarnContext(ctx, "Cache read failed, treating as miss", "key", key, "error", err)
		}
		cacheMissesTotal.WithLabelValues(keyDomain(key)).Inc()
		return nil, false
	}
	cacheHitsTotal.WithLabelValues(keyDomain(key)).Inc()
	return b, true
}

// Set overwrites key unconditionally.
func (c *Coordinator) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		cacheErrorsTotal.WithLabelValues("set").Inc()
		slog.WarnContext(ctx, "Cache write failed", "key", key, "ttl", ttl, "error", err)
	}
}

// Put is Set for writes a caller cannot lose: the substrate error is
// returned instead of logged.
func (c *Coordinator) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		cacheErrorsTotal.WithLabelValues("set").Inc()
		return err
	}
	return nil
}

// SetIfAbsent stores value only when key is not present. Unlike the other
// writes its error is returned: callers use it for mutual exclusion.
func (c *Coordinator) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.store.SetNX(ctx, key, value, ttl)
}

// Delete removes a single key.
func (c *Coordinator) Delete(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		cacheErrorsTotal.WithLabelValues("delete").Inc()
		slog.WarnContext(ctx, "Cache delete failed", "key", key, "error", err)
	}
}

// Invalidate deletes every key under prefix. Zero matches is a no-op.
func (c *Coordinator) Invalidate(ctx context.Context, prefix string) int {
	n, err := c.store.DeletePrefix(ctx, prefix)
	if err != nil {
		cacheErrorsTotal.WithLabelValues("invalidate").Inc()
		slog.WarnContext(ctx, "Cache invalidation failed", "prefix", prefix, "removed", n, "error", err)
	}
	cacheInvalidatedTotal.Add(float64(n))
	return n
}

// InvalidateUser drops every summary derived from a user's records. All
// months go at once because the months a mutation touched are not tracked.
func (c *Coordinator) InvalidateUser(ctx context.Context, userID string) {
	removed := c.Invalidate(ctx, MonthlySummaryPrefix(userID))
	c.Delete(ctx, KeyAnalyticsSummary(userID))
	slog.DebugContext(ctx, "User cache invalidated", "user_id", userID, "monthly_removed", removed)
}

// Ping reports substrate health.
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// GetJSON decodes the value under key into a T. A corrupt entry is deleted
// and reported as a miss.
func GetJSON[T any](ctx context.Context, c *Coordinator, key string) (T, bool) {
	var v T
	b, ok := c.Get(ctx, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		slog.WarnContext(ctx, "Discarding undecodable cache entry", "key", key, "error", err)
		c.Delete(ctx, key)
		var zero T
		return zero, false
	}
	return v, true
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c *Coordinator, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "Cache value not serializable", "key", key, "error", err)
		return
	}
	c.Set(ctx, key, b, ttl)
}
