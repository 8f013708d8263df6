package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is a single spending record owned by a user.
	Expense struct {
		ID          int64
		UserID      string
		Date        Date
		Description string
		Amount      Money
		Category    string
	}

	// ReportSubscription records who receives the scheduled monthly report of a user.
	ReportSubscription struct {
		UserID    string
		Recipient string
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidPeriod    = errors.New("invalid period")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyUserID      = errors.New("empty user id")
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrEmptyRecipient   = errors.New("empty recipient")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrInvalidDate      = errors.New("invalid date, expected YYYY-MM-DD")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
)

// IsValidationError reports whether err comes from validating user input.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidDay, ErrInvalidMonth, ErrInvalidAmount, ErrInvalidPeriod,
		ErrEmptyDescription, ErrEmptyCategory, ErrEmptyUserID, ErrInvalidUserID, ErrEmptyRecipient,
		ErrZeroDate, ErrInvalidDate, ErrDescriptionLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// MaxUserIDLength bounds the user id length.
const MaxUserIDLength = 128

// ValidateUserID checks that id can be embedded in a cache key. Key segments
// are joined with ':' and prefix scans use glob patterns, so neither the
// separator nor glob metacharacters are allowed.
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyUserID
	}
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidUserID, MaxUserIDLength)
	}
	for _, r := range id {
		if r <= ' ' || r == 0x7f || strings.ContainsRune(":*?[]\\", r) {
			return fmt.Errorf("%w: %q", ErrInvalidUserID, id)
		}
	}
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ISO returns the date formatted as YYYY-MM-DD.
func (d Date) ISO() string {
	return d.Format("2006-01-02")
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if err := ValidateUserID(e.UserID); err != nil {
		return err
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return ErrDescriptionLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (s ReportSubscription) Validate() error {
	if err := ValidateUserID(s.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(s.Recipient) == "" {
		return ErrEmptyRecipient
	}
	return nil
}

// Period identifies a calendar month.
type Period struct {
	Year  int
	Month int
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// ParsePeriod parses a YYYY-MM string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return PeriodOf(t), nil
}

func (p Period) Validate() error {
	if p.Year < 1 {
		return ErrInvalidPeriod
	}
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths returns the period n months away (n may be negative).
func (p Period) AddMonths(n int) Period {
	return PeriodOf(p.Start().AddDate(0, n, 0))
}

// Range returns the half-open date range covering the period.
func (p Period) Range() DateRange {
	return DateRange{From: p.Start(), To: p.AddMonths(1).Start()}
}

// DateRange is a half-open interval [From, To).
type DateRange struct {
	From time.Time
	To   time.Time
}
