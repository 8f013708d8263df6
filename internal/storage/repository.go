package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spese-analytics/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Migrations run on their own connection before the pool is opened.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateExpense stores a new expense and returns it with its ID.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, spent_on, description, amount_cents, category) VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Date.ISO(), e.Description, e.Amount.Cents, e.Category)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("read expense id: %w", err)
	}
	e.ID = id

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", e.UserID,
		"amount_cents", e.Amount.Cents,
		"category", e.Category,
		"date", e.Date.ISO())
	return e, nil
}

// UpdateExpense replaces the fields of an existing expense owned by e.UserID.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses
		    SET spent_on = ?, description = ?, amount_cents = ?, category = ?, updated_at = CURRENT_TIMESTAMP
		  WHERE id = ? AND user_id = ?`,
		e.Date.ISO(), e.Description, e.Amount.Cents, e.Category, e.ID, e.UserID)
	if err != nil {
		return fmt.Errorf("update expense %d: %w", e.ID, err)
	}
	if err := expectOneRow(res); err != nil {
		return fmt.Errorf("update expense %d: %w", e.ID, err)
	}

	slog.InfoContext(ctx, "Expense updated", "id", e.ID, "user_id", e.UserID)
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if err := expectOneRow(res); err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Expense deleted", "id", id, "user_id", userID)
	return nil
}

// GetExpense retrieves a single expense by ID
func (r *SQLiteRepository) GetExpense(ctx context.Context, userID string, id int64) (core.Expense, error) {
	var (
		e       core.Expense
		spentOn string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, spent_on, description, amount_cents, category FROM expenses WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&e.ID, &e.UserID, &spentOn, &e.Description, &e.Amount.Cents, &e.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}

	t, err := time.Parse(dateLayout, spentOn)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse spent_on %q: %w", spentOn, err)
	}
	e.Date = core.Date{Time: t}
	return e, nil
}

// Aggregate sums a user's expenses grouped by category, or by category and
// month. Rows come back ordered by month then category.
func (r *SQLiteRepository) Aggregate(ctx context.Context, q core.AggregateQuery) ([]core.AggregateRow, error) {
	var (
		query strings.Builder
		args  = []any{q.UserID}
	)

	switch q.GroupBy {
	case core.GroupByCategory:
		query.WriteString(`SELECT category, '' AS month, SUM(amount_cents), COUNT(*) FROM expenses WHERE user_id = ?`)
	case core.GroupByCategoryMonth:
		query.WriteString(`SELECT category, substr(spent_on, 1, 7) AS month, SUM(amount_cents), COUNT(*) FROM expenses WHERE user_id = ?`)
	default:
		return nil, fmt.Errorf("unsupported grouping %q", q.GroupBy)
	}

	if q.Range != nil {
		query.WriteString(` AND spent_on >= ? AND spent_on < ?`)
		args = append(args, q.Range.From.Format(dateLayout), q.Range.To.Format(dateLayout))
	}

	if q.GroupBy == core.GroupByCategory {
		query.WriteString(` GROUP BY category ORDER BY category`)
	} else {
		query.WriteString(` GROUP BY category, month ORDER BY month, category`)
	}

	rows, err := r.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate expenses: %w", err)
	}
	defer rows.Close()

	var out []core.AggregateRow
	for rows.Next() {
		var row core.AggregateRow
		if err := rows.Scan(&row.Category, &row.Month, &row.TotalCents, &row.Count); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return out, nil
}

// SetReportSubscription creates or replaces the report recipient of a user.
func (r *SQLiteRepository) SetReportSubscription(ctx context.Context, s core.ReportSubscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO report_subscriptions (user_id, recipient) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET recipient = excluded.recipient, updated_at = CURRENT_TIMESTAMP`,
		s.UserID, s.Recipient)
	if err != nil {
		return fmt.Errorf("set report subscription: %w", err)
	}

	slog.InfoContext(ctx, "Report subscription saved", "user_id", s.UserID, "recipient", s.Recipient)
	return nil
}

func (r *SQLiteRepository) ListReportSubscriptions(ctx context.Context) ([]core.ReportSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, recipient FROM report_subscriptions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list report subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []core.ReportSubscription
	for rows.Next() {
		var s core.ReportSubscription
		if err := rows.Scan(&s.UserID, &s.Recipient); err != nil {
			return nil, fmt.Errorf("scan report subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
