package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// brokenStore simulates a cache outage.
type brokenStore struct{}

var errOutage = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errOutage }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errOutage
}
func (brokenStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errOutage
}
func (brokenStore) Delete(context.Context, ...string) error           { return errOutage }
func (brokenStore) DeletePrefix(context.Context, string) (int, error) { return 0, errOutage }
func (brokenStore) Ping(context.Context) error                        { return errOutage }
func (brokenStore) Close() error                                      { return nil }

type sample struct {
	Total int64 `json:"total"`
}

func TestCoordinatorInvalidateUser(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(NewLRUStore(100), DefaultTTLs())

	for _, p := range []string{"2025-01", "2025-02", "2025-03"} {
		c.Set(ctx, KeyMonthlySummary("u1", p), []byte("x"), time.Hour)
	}
	c.Set(ctx, KeyAnalyticsSummary("u1"), []byte("x"), time.Hour)
	c.Set(ctx, KeyMonthlySummary("u10", "2025-01"), []byte("other"), time.Hour)
	c.Set(ctx, KeyAnalyticsSummary("u10"), []byte("other"), time.Hour)

	c.InvalidateUser(ctx, "u1")

	for _, p := range []string{"2025-01", "2025-02", "2025-03"} {
		if _, ok := c.Get(ctx, KeyMonthlySummary("u1", p)); ok {
			t.Errorf("monthly summary %s should be invalidated", p)
		}
	}
	if _, ok := c.Get(ctx, KeyAnalyticsSummary("u1")); ok {
		t.Error("analytics summary should be invalidated")
	}
	if _, ok := c.Get(ctx, KeyMonthlySummary("u10", "2025-01")); !ok {
		t.Error("u10 monthly summary must survive u1 invalidation")
	}
	if _, ok := c.Get(ctx, KeyAnalyticsSummary("u10")); !ok {
		t.Error("u10 analytics summary must survive u1 invalidation")
	}
}

func TestCoordinatorInvalidateNoMatches(t *testing.T) {
	c := NewCoordinator(NewLRUStore(10), DefaultTTLs())
	if n := c.Invalidate(context.Background(), "monthly_summary:ghost:"); n != 0 {
		t.Fatalf("expected 0 removed, got %d", n)
	}
}

func TestCoordinatorDegradesOnOutage(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(brokenStore{}, DefaultTTLs())

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("outage should read as a miss")
	}
	// Writes must not panic or surface errors.
	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")
	c.InvalidateUser(ctx, "u1")

	if err := c.Put(ctx, "k", []byte("v"), time.Minute); !errors.Is(err, errOutage) {
		t.Fatalf("Put must report substrate errors, got %v", err)
	}
	if _, err := c.SetIfAbsent(ctx, "lease", []byte("1"), time.Minute); err == nil {
		t.Fatal("SetIfAbsent must report substrate errors")
	}
	if err := c.Ping(ctx); err == nil {
		t.Fatal("Ping must report substrate errors")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(NewLRUStore(10), DefaultTTLs())

	SetJSON(ctx, c, "k", sample{Total: 42}, time.Hour)
	got, ok := GetJSON[sample](ctx, c, "k")
	if !ok || got.Total != 42 {
		t.Fatalf("GetJSON = %+v, %v", got, ok)
	}

	if _, ok := GetJSON[sample](ctx, c, "missing"); ok {
		t.Fatal("missing key should be a miss")
	}
}

func TestGetJSONDropsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := NewLRUStore(10)
	c := NewCoordinator(store, DefaultTTLs())

	c.Set(ctx, "k", []byte("{not json"), time.Hour)
	if _, ok := GetJSON[sample](ctx, c, "k"); ok {
		t.Fatal("corrupt entry should be a miss")
	}
	if store.Size() != 0 {
		t.Fatal("corrupt entry should have been deleted")
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{KeyMonthlySummary("42", "2025-03"), "monthly_summary:42:2025-03"},
		{MonthlySummaryPrefix("42"), "monthly_summary:42:"},
		{KeyAnalyticsSummary("42"), "analytics_summary:42"},
		{KeyTrendResult("42"), "spending_trends:42"},
		{KeyTrendLease("42"), "spending_trends_processing:42"},
		{KeyReportSent("42", "job-1"), "report_sent:42:job-1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestCoordinatorMetrics(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(NewLRUStore(10), DefaultTTLs())

	hits := testutil.ToFloat64(cacheHitsTotal.WithLabelValues("counted"))
	misses := testutil.ToFloat64(cacheMissesTotal.WithLabelValues("counted"))
	invalidated := testutil.ToFloat64(cacheInvalidatedTotal)

	c.Set(ctx, "counted:u1:a", []byte("v"), time.Hour)
	c.Set(ctx, "counted:u1:b", []byte("v"), time.Hour)
	c.Get(ctx, "counted:u1:a")
	c.Get(ctx, "counted:u1:missing")
	c.Invalidate(ctx, "counted:u1:")

	if got := testutil.ToFloat64(cacheHitsTotal.WithLabelValues("counted")) - hits; got != 1 {
		t.Errorf("hits delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(cacheMissesTotal.WithLabelValues("counted")) - misses; got != 1 {
		t.Errorf("misses delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(cacheInvalidatedTotal) - invalidated; got != 2 {
		t.Errorf("invalidated delta = %v, want 2", got)
	}

	getErrors := testutil.ToFloat64(cacheErrorsTotal.WithLabelValues("get"))
	NewCoordinator(brokenStore{}, DefaultTTLs()).Get(ctx, "counted:u1:a")
	if got := testutil.ToFloat64(cacheErrorsTotal.WithLabelValues("get")) - getErrors; got != 1 {
		t.Errorf("get errors delta = %v, want 1", got)
	}
}
