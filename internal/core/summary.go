package core

import (
	"sort"
	"time"
)

// GroupBy selects how the aggregate store groups rows.
type GroupBy string

const (
	GroupByCategory      GroupBy = "category"
	GroupByCategoryMonth GroupBy = "category_month"
)

// AggregateQuery asks the aggregate store for grouped sums of a user's records.
type AggregateQuery struct {
	UserID  string
	Range   *DateRange // nil means all records
	GroupBy GroupBy
}

// AggregateRow is one group returned by the aggregate store. Month is YYYY-MM
// and only set when grouping by category and month.
type AggregateRow struct {
	Category   string
	Month      string
	TotalCents int64
	Count      int64
}

// CategoryAggregate is a category's share of a summary.
type CategoryAggregate struct {
	Category   string  `json:"category"`
	TotalCents int64   `json:"total_cents"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// MonthlySummary is the cached per-month category breakdown of a user.
type MonthlySummary struct {
	UserID     string              `json:"user_id"`
	Period     string              `json:"period"`
	TotalCents int64               `json:"total_cents"`
	Count      int64               `json:"count"`
	Categories []CategoryAggregate `json:"categories"`
}

// AnalyticsSummary is the cached all-time category breakdown of a user.
type AnalyticsSummary struct {
	UserID      string              `json:"user_id"`
	TotalCents  int64               `json:"total_cents"`
	Count       int64               `json:"count"`
	TopCategory string              `json:"top_category,omitempty"`
	Categories  []CategoryAggregate `json:"categories"`
}

// BuildCategoryAggregates turns grouped rows into categories with percentages,
// sorted by total descending then by name. It returns the grand total and count.
func BuildCategoryAggregates(rows []AggregateRow) ([]CategoryAggregate, int64, int64) {
	byCategory := make(map[string]*CategoryAggregate)
	var total, count int64
	for _, r := range rows {
		agg, ok := byCategory[r.Category]
		if !ok {
			agg = &CategoryAggregate{Category: r.Category}
			byCategory[r.Category] = agg
		}
		agg.TotalCents += r.TotalCents
		agg.Count += r.Count
		total += r.TotalCents
		count += r.Count
	}

	out := make([]CategoryAggregate, 0, len(byCategory))
	for _, agg := range byCategory {
		if total > 0 {
			agg.Percentage = float64(agg.TotalCents) / float64(total) * 100
		}
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalCents != out[j].TotalCents {
			return out[i].TotalCents > out[j].TotalCents
		}
		return out[i].Category < out[j].Category
	})
	return out, total, count
}

// TrendDirection classifies a change between two windows.
type TrendDirection string

const (
	TrendIncreasing       TrendDirection = "increasing"
	TrendDecreasing       TrendDirection = "decreasing"
	TrendStable           TrendDirection = "stable"
	TrendInsufficientData TrendDirection = "insufficient-data"
)

// CategoryTrend is the trend of a single category.
type CategoryTrend struct {
	Category         string         `json:"category"`
	Trend            TrendDirection `json:"trend"`
	PercentageChange float64        `json:"percentage_change"`
	AverageMonthly   float64        `json:"average_monthly"`
}

// MonthTotal is the grand total of one month.
type MonthTotal struct {
	Month      string `json:"month"`
	TotalCents int64  `json:"total_cents"`
}

// TrendResult is the output of a spending-trend analysis. It is always
// replaced as a whole.
type TrendResult struct {
	UserID                  string          `json:"user_id"`
	CategoryTrends          []CategoryTrend `json:"category_trends"`
	OverallTrend            TrendDirection  `json:"overall_trend"`
	OverallPercentageChange float64         `json:"overall_percentage_change"`
	Insights                []string        `json:"insights"`
	MonthlyTotals           []MonthTotal    `json:"monthly_totals"`
	NoData                  bool            `json:"no_data"`
	GeneratedAt             time.Time       `json:"generated_at"`
}

// AnalysisState is the state of an asynchronous analysis.
type AnalysisState string

const (
	AnalysisNotStarted AnalysisState = "not_started"
	AnalysisProcessing AnalysisState = "processing"
	AnalysisCompleted  AnalysisState = "completed"
)

// AnalysisStatus is what pollers see. Data is set only when completed.
type AnalysisStatus struct {
	State AnalysisState `json:"state"`
	Data  *TrendResult  `json:"data,omitempty"`
}
