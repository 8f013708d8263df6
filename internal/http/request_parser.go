// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"spese-analytics/internal/core"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

// decodeJSON reads a single JSON object into v, rejecting unknown fields
// and bodies over maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errInvalidBody)
	}
	return nil
}

// expenseRequest is the body of expense create and update calls. Amount is
// a decimal string ("12.34" or "12,34") so no float rounding is involved.
type expenseRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
}

// toExpense parses and validates the request for userID.
func (req expenseRequest) toExpense(userID string) (core.Expense, error) {
	date, err := parseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return core.Expense{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, req.Date)
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.Expense{}, err
	}

	e := core.Expense{
		UserID:      userID,
		Date:        date,
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: cents},
		Category:    sanitizeInput(req.Category),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

type expenseResponse struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
}

func newExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		UserID:      e.UserID,
		Date:        e.Date.ISO(),
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
	}
}

// parseDate parses a date string in YYYY-MM-DD format.
func parseDate(dateStr string) (core.Date, error) {
	parsedTime, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return core.Date{}, err
	}
	return core.Date{Time: parsedTime}, nil
}

// ParseMonthParams extracts year and month from query parameters, defaulting
// missing values to the month containing now.
func ParseMonthParams(query url.Values, now time.Time) (core.Period, error) {
	period := core.PeriodOf(now)

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, fmt.Errorf("%w: year %q", core.ErrInvalidPeriod, v)
		}
		period.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, fmt.Errorf("%w: month %q", core.ErrInvalidMonth, v)
		}
		period.Month = m
	}

	if err := period.Validate(); err != nil {
		return core.Period{}, err
	}
	return period, nil
}

// reportRequest asks for a one-off report. An empty period means the
// previous calendar month.
type reportRequest struct {
	Period    string `json:"period"`
	Recipient string `json:"recipient"`
}

func (req reportRequest) period(now time.Time) (core.Period, error) {
	if strings.TrimSpace(req.Period) == "" {
		return core.PeriodOf(now).AddMonths(-1), nil
	}
	return core.ParsePeriod(req.Period)
}

type reportResponse struct {
	JobID     string `json:"job_id"`
	Period    string `json:"period"`
	Recipient string `json:"recipient"`
}

type subscriptionRequest struct {
	Recipient string `json:"recipient"`
}

// parseForce reads the optional force query flag.
func parseForce(query url.Values) (bool, error) {
	v := strings.TrimSpace(query.Get("force"))
	if v == "" {
		return false, nil
	}
	force, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: force %q", errInvalidParam, v)
	}
	return force, nil
}
