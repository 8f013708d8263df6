package services

import (
	"context"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/core"
)

// ExpenseStore persists expense records.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, userID string, id int64) error
}

// AggregateStore runs grouping queries over a user's records.
type AggregateStore interface {
	Aggregate(ctx context.Context, q core.AggregateQuery) ([]core.AggregateRow, error)
}

type SubscriptionStore interface {
	SetReportSubscription(ctx context.Context, s core.ReportSubscription) error
}

// Publisher enqueues jobs durably.
type Publisher interface {
	Publish(ctx context.Context, job *amqp.Job) error
}
