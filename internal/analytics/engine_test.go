package analytics

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"spese-analytics/internal/core"
)

type fakeStore struct {
	rows    []core.AggregateRow
	err     error
	queries []core.AggregateQuery
}

func (f *fakeStore) Aggregate(_ context.Context, q core.AggregateQuery) ([]core.AggregateRow, error) {
	f.queries = append(f.queries, q)
	return f.rows, f.err
}

type fakeSink struct {
	results map[string]*core.TrendResult
	err     error
}

func (f *fakeSink) Complete(_ context.Context, userID string, r *core.TrendResult) error {
	if f.err != nil {
		return f.err
	}
	if f.results == nil {
		f.results = make(map[string]*core.TrendResult)
	}
	f.results[userID] = r
	return nil
}

func newTestEngine(store AggregateStore, sink ResultSink) *Engine {
	e := NewEngine(store, sink, 6)
	e.now = func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }
	return e
}

func TestEngineWindow(t *testing.T) {
	e := newTestEngine(&fakeStore{}, &fakeSink{})
	w := e.Window()
	if !w.From.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("From = %v", w.From)
	}
	if !w.To.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("To = %v", w.To)
	}
}

func TestEngineMonths(t *testing.T) {
	e := newTestEngine(&fakeStore{}, &fakeSink{})
	if got := e.Months(); !reflect.DeepEqual(got, sixMonths) {
		t.Fatalf("Months() = %v, want %v", got, sixMonths)
	}

	e.now = func() time.Time { return time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC) }
	want := []string{"2024-09", "2024-10", "2024-11", "2024-12", "2025-01", "2025-02"}
	if got := e.Months(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Months() across a year boundary = %v, want %v", got, want)
	}
}

func TestEngineComputeWithGapMonth(t *testing.T) {
	store := &fakeStore{rows: seriesRows("food", sixMonths, 100, 100, 100, 0, 0, 100)}
	e := newTestEngine(store, &fakeSink{})

	result, err := e.Compute(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if result.OverallTrend != core.TrendDecreasing || len(result.MonthlyTotals) != 6 {
		t.Fatalf("overall = %s over %d months, want decreasing over 6", result.OverallTrend, len(result.MonthlyTotals))
	}
}

func TestEngineDefaultWindow(t *testing.T) {
	e := NewEngine(&fakeStore{}, &fakeSink{}, 0)
	if e.windowMonths != DefaultWindowMonths {
		t.Fatalf("windowMonths = %d, want %d", e.windowMonths, DefaultWindowMonths)
	}
}

func TestEngineCompute(t *testing.T) {
	store := &fakeStore{rows: seriesRows("food", sixMonths, 100, 100, 100, 150, 160, 170)}
	sink := &fakeSink{}
	e := newTestEngine(store, sink)

	result, err := e.Compute(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if len(store.queries) != 1 {
		t.Fatalf("expected one aggregate query, got %d", len(store.queries))
	}
	q := store.queries[0]
	if q.UserID != "u1" || q.GroupBy != core.GroupByCategoryMonth || q.Range == nil {
		t.Fatalf("unexpected query %+v", q)
	}
	if sink.results["u1"] != result {
		t.Fatal("result should be handed to the sink")
	}
	if result.OverallTrend != core.TrendIncreasing {
		t.Errorf("overall trend = %s", result.OverallTrend)
	}
	if result.GeneratedAt.IsZero() {
		t.Error("GeneratedAt should be set")
	}
}

func TestEngineComputeIsIdempotent(t *testing.T) {
	store := &fakeStore{rows: append(
		seriesRows("food", sixMonths, 100, 100, 100, 150, 160, 170),
		seriesRows("rent", sixMonths, 900, 900, 900, 900, 900, 900)...,
	)}
	sink := &fakeSink{}
	e := newTestEngine(store, sink)

	first, err := e.Compute(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first Compute: %v", err)
	}
	second, err := e.Compute(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second Compute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("replaying the same job must produce an identical result")
	}
}

func TestEngineComputeStoreError(t *testing.T) {
	storeErr := errors.New("database is locked")
	sink := &fakeSink{}
	e := newTestEngine(&fakeStore{err: storeErr}, sink)

	_, err := e.Compute(context.Background(), "u1")
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
	if len(sink.results) != 0 {
		t.Fatal("nothing must be published on failure")
	}
}

func TestEngineComputeSinkError(t *testing.T) {
	sinkErr := errors.New("encode failed")
	e := newTestEngine(&fakeStore{}, &fakeSink{err: sinkErr})

	if _, err := e.Compute(context.Background(), "u1"); !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
}
