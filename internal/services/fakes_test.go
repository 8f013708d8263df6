package services

import (
	"context"
	"errors"
	"time"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/cache"
	"spese-analytics/internal/core"
)

type fakeExpenseStore struct {
	nextID int64
	err    error
}

func (f *fakeExpenseStore) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if f.err != nil {
		return core.Expense{}, f.err
	}
	f.nextID++
	e.ID = f.nextID
	return e, nil
}

func (f *fakeExpenseStore) UpdateExpense(context.Context, core.Expense) error { return f.err }

func (f *fakeExpenseStore) DeleteExpense(context.Context, string, int64) error { return f.err }

type fakeAggregateStore struct {
	rows    []core.AggregateRow
	err     error
	queries []core.AggregateQuery
}

func (f *fakeAggregateStore) Aggregate(_ context.Context, q core.AggregateQuery) ([]core.AggregateRow, error) {
	f.queries = append(f.queries, q)
	return f.rows, f.err
}

type fakePublisher struct {
	jobs      []*amqp.Job
	err       error
	onPublish func(*amqp.Job)
}

func (f *fakePublisher) Publish(_ context.Context, job *amqp.Job) error {
	if f.onPublish != nil {
		f.onPublish(job)
	}
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeSubscriptions struct {
	saved []core.ReportSubscription
}

func (f *fakeSubscriptions) SetReportSubscription(_ context.Context, s core.ReportSubscription) error {
	f.saved = append(f.saved, s)
	return nil
}

var errBroker = errors.New("connection refused")

var errCacheDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

// unavailableStore fails every cache operation.
type unavailableStore struct{}

func (unavailableStore) Get(context.Context, string) ([]byte, error) { return nil, errCacheDown }
func (unavailableStore) Set(context.Context, string, []byte, time.Duration) error {
	return errCacheDown
}
func (unavailableStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errCacheDown
}
func (unavailableStore) Delete(context.Context, ...string) error           { return errCacheDown }
func (unavailableStore) DeletePrefix(context.Context, string) (int, error) { return 0, errCacheDown }
func (unavailableStore) Ping(context.Context) error                        { return errCacheDown }
func (unavailableStore) Close() error                                      { return nil }

func newTestCoordinator() *cache.Coordinator {
	return cache.NewCoordinator(cache.NewLRUStore(1000), cache.DefaultTTLs())
}
