package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"spese-analytics/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Deliverer sends a finished report to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, r *Report) error
}

// LogDeliverer writes the report to the structured log. It is the default
// channel when no external destination is configured.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(ctx context.Context, r *Report) error {
	attrs := []any{
		"user_id", r.UserID,
		"period", r.Period,
		"recipient", r.Recipient,
		"total", core.FormatEuros(r.Summary.TotalCents),
		"expenses", r.Summary.Count,
		"categories", len(r.Summary.Categories),
	}
	if r.Trends != nil {
		attrs = append(attrs, "overall_trend", r.Trends.OverallTrend, "insights", r.Trends.Insights)
	}
	slog.InfoContext(ctx, "Monthly report delivered", attrs...)
	return nil
}

// Multi delivers to every deliverer in order and stops at the first failure.
type Multi []Deliverer

func (m Multi) Deliver(ctx context.Context, r *Report) error {
	for _, d := range m {
		if err := d.Deliver(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// SheetsConfig locates the spreadsheet and the service account used to write it.
type SheetsConfig struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// SheetsDeliverer appends one row per category of the report to a sheet.
type SheetsDeliverer struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

func NewSheetsDeliverer(svc *gsheet.Service, spreadsheetID, sheetName string) *SheetsDeliverer {
	if sheetName == "" {
		sheetName = "Reports"
	}
	return &SheetsDeliverer{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

// NewSheetsService creates a Sheets service from service account credentials,
// given inline or as a file path.
func NewSheetsService(ctx context.Context, cfg SheetsConfig, opts ...goption.ClientOption) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	opts = append([]goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)
	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(credentialsJSON))
	return service, nil
}

func (d *SheetsDeliverer) Deliver(ctx context.Context, r *Report) error {
	if d.svc == nil {
		return errors.New("sheets service not initialized")
	}

	trend := func(category string) string {
		if r.Trends == nil {
			return ""
		}
		for _, t := range r.Trends.CategoryTrends {
			if t.Category == category {
				return string(t.Trend)
			}
		}
		return ""
	}

	values := make([][]any, 0, len(r.Summary.Categories)+1)
	for _, c := range r.Summary.Categories {
		values = append(values, []any{
			r.Period, r.UserID, r.Recipient, c.Category,
			float64(c.TotalCents) / 100.0,
			fmt.Sprintf("%.1f%%", c.Percentage),
			trend(c.Category),
		})
	}
	overall := ""
	if r.Trends != nil {
		overall = string(r.Trends.OverallTrend)
	}
	values = append(values, []any{r.Period, r.UserID, r.Recipient, "TOTAL", float64(r.Summary.TotalCents) / 100.0, "100.0%", overall})

	rng := fmt.Sprintf("%s!A:G", d.sheetName)
	_, err := d.svc.Spreadsheets.Values.Append(d.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append report to sheet %s: %w", d.sheetName, err)
	}

	slog.InfoContext(ctx, "Report appended to sheet",
		"sheet", d.sheetName,
		"user_id", r.UserID,
		"period", r.Period,
		"rows", len(values))
	return nil
}
