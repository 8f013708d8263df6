package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"spese-analytics/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "spese.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustCreate(t *testing.T, repo *SQLiteRepository, userID, date, category string, cents int64) core.Expense {
	t.Helper()
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		t.Fatal(err)
	}
	e, err := repo.CreateExpense(context.Background(), core.Expense{
		UserID:      userID,
		Date:        core.Date{Time: d},
		Description: "test " + category,
		Amount:      core.Money{Cents: cents},
		Category:    category,
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	return e
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spese.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestExpenseCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created := mustCreate(t, repo, "u1", "2025-03-14", "food", 1250)
	if created.ID == 0 {
		t.Fatal("expected an ID")
	}

	got, err := repo.GetExpense(ctx, "u1", created.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if got.Date.ISO() != "2025-03-14" || got.Amount.Cents != 1250 || got.Category != "food" {
		t.Fatalf("unexpected expense %+v", got)
	}

	got.Amount = core.Money{Cents: 900}
	got.Category = "bars"
	if err := repo.UpdateExpense(ctx, got); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	updated, _ := repo.GetExpense(ctx, "u1", created.ID)
	if updated.Amount.Cents != 900 || updated.Category != "bars" {
		t.Fatalf("update not applied: %+v", updated)
	}

	if err := repo.DeleteExpense(ctx, "u1", created.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if _, err := repo.GetExpense(ctx, "u1", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestExpenseOwnership(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	e := mustCreate(t, repo, "u1", "2025-03-14", "food", 1250)

	if _, err := repo.GetExpense(ctx, "u2", e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("other users must not read the expense, got %v", err)
	}
	e.UserID = "u2"
	if err := repo.UpdateExpense(ctx, e); !errors.Is(err, ErrNotFound) {
		t.Errorf("other users must not update the expense, got %v", err)
	}
	if err := repo.DeleteExpense(ctx, "u2", e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("other users must not delete the expense, got %v", err)
	}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	mustCreate(t, repo, "u1", "2025-01-05", "food", 1000)
	mustCreate(t, repo, "u1", "2025-01-20", "food", 500)
	mustCreate(t, repo, "u1", "2025-02-01", "food", 700)
	mustCreate(t, repo, "u1", "2025-02-28", "rent", 90000)
	mustCreate(t, repo, "u1", "2025-03-01", "rent", 90000)
	mustCreate(t, repo, "u2", "2025-01-05", "food", 99999)

	t.Run("by category, all time", func(t *testing.T) {
		rows, err := repo.Aggregate(ctx, core.AggregateQuery{UserID: "u1", GroupBy: core.GroupByCategory})
		if err != nil {
			t.Fatal(err)
		}
		want := []core.AggregateRow{
			{Category: "food", TotalCents: 2200, Count: 3},
			{Category: "rent", TotalCents: 180000, Count: 2},
		}
		if !reflect.DeepEqual(rows, want) {
			t.Fatalf("got %+v, want %+v", rows, want)
		}
	})

	t.Run("by category and month within range", func(t *testing.T) {
		r := core.DateRange{From: core.Period{Year: 2025, Month: 1}.Start(), To: core.Period{Year: 2025, Month: 3}.Start()}
		rows, err := repo.Aggregate(ctx, core.AggregateQuery{UserID: "u1", Range: &r, GroupBy: core.GroupByCategoryMonth})
		if err != nil {
			t.Fatal(err)
		}
		want := []core.AggregateRow{
			{Category: "food", Month: "2025-01", TotalCents: 1500, Count: 2},
			{Category: "food", Month: "2025-02", TotalCents: 700, Count: 1},
			{Category: "rent", Month: "2025-02", TotalCents: 90000, Count: 1},
		}
		if !reflect.DeepEqual(rows, want) {
			t.Fatalf("got %+v, want %+v", rows, want)
		}
	})

	t.Run("unknown user has no rows", func(t *testing.T) {
		rows, err := repo.Aggregate(ctx, core.AggregateQuery{UserID: "nobody", GroupBy: core.GroupByCategory})
		if err != nil || len(rows) != 0 {
			t.Fatalf("got %v, %v", rows, err)
		}
	})

	t.Run("unsupported grouping", func(t *testing.T) {
		if _, err := repo.Aggregate(ctx, core.AggregateQuery{UserID: "u1", GroupBy: "week"}); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestReportSubscriptions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, s := range []core.ReportSubscription{
		{UserID: "u2", Recipient: "b@example.com"},
		{UserID: "u1", Recipient: "a@example.com"},
		{UserID: "u1", Recipient: "a2@example.com"},
	} {
		if err := repo.SetReportSubscription(ctx, s); err != nil {
			t.Fatalf("SetReportSubscription: %v", err)
		}
	}

	subs, err := repo.ListReportSubscriptions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []core.ReportSubscription{
		{UserID: "u1", Recipient: "a2@example.com"},
		{UserID: "u2", Recipient: "b@example.com"},
	}
	if !reflect.DeepEqual(subs, want) {
		t.Fatalf("got %+v, want %+v", subs, want)
	}
}
