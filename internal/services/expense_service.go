package services

import (
	"context"
	"fmt"
	"log/slog"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/cache"
	"spese-analytics/internal/core"
)

// ExpenseService writes expenses and keeps derived data coherent: every
// mutation drops the user's cached summaries before the event is enqueued.
type ExpenseService struct {
	store     ExpenseStore
	cache     *cache.Coordinator
	publisher Publisher
}

func NewExpenseService(store ExpenseStore, c *cache.Coordinator, publisher Publisher) *ExpenseService {
	return &ExpenseService{
		store:     store,
		cache:     c,
		publisher: publisher,
	}
}

// CreateExpense saves an expense, invalidates the owner's summaries and
// publishes a new_expense event.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.afterMutation(ctx, amqp.JobNewExpense, created.UserID, created.ID)
	return created, nil
}

func (s *ExpenseService) UpdateExpense(ctx context.Context, e core.Expense) error {
	if e.ID <= 0 {
		return fmt.Errorf("update expense: invalid id %d", e.ID)
	}
	if err := e.Validate(); err != nil {
		return err
	}

	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	s.afterMutation(ctx, amqp.JobUpdateExpense, e.UserID, e.ID)
	return nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, userID string, id int64) error {
	if err := s.store.DeleteExpense(ctx, userID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.afterMutation(ctx, amqp.JobDeleteExpense, userID, id)
	return nil
}

// afterMutation invalidates before enqueueing so no reader can observe a
// stale summary once the event exists. Neither step fails the request: the
// record is already stored.
func (s *ExpenseService) afterMutation(ctx context.Context, t amqp.JobType, userID string, id int64) {
	s.cache.InvalidateUser(ctx, userID)

	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping mutation event", "type", t, "user_id", userID)
		return
	}
	if err := s.publisher.Publish(ctx, amqp.NewMutationJob(t, userID, id)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish mutation event",
			"type", t,
			"user_id", userID,
			"expense_id", id,
			"error", err)
	}
}
