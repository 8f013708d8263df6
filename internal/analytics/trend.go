// Package analytics classifies spending trends from monthly category totals.
//
// The analysis compares the average of the most recent months against the
// average of the months right before them, per category and for the grand
// total. Everything in this file is a pure function of its input so a
// recomputation over unchanged data yields the same result.
package analytics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"spese-analytics/internal/core"
)

const (
	// splitMonths is the size of both the recent and the previous window.
	splitMonths = 3

	// changeThreshold is the percentage beyond which a change is a trend.
	changeThreshold = 10.0

	// newSpendingChange is reported when nothing was spent in the previous window.
	newSpendingChange = 100.0

	maxInsightCategories = 3

	minActiveMonths = 2
)

// Classify compares two averages. A previous average of zero cannot form a
// ratio: zero to zero is stable, anything else is new spending reported as +100%.
func Classify(recentAvg, previousAvg float64) (core.TrendDirection, float64) {
	if previousAvg == 0 {
		if recentAvg == 0 {
			return core.TrendStable, 0
		}
		return core.TrendIncreasing, newSpendingChange
	}

	change := (recentAvg - previousAvg) / previousAvg * 100
	switch {
	case change > changeThreshold:
		return core.TrendIncreasing, round2(change)
	case change < -changeThreshold:
		return core.TrendDecreasing, round2(change)
	default:
		return core.TrendStable, round2(change)
	}
}

// matrix is a dense month×category table of totals in cents. Months with no
// spending, in one category or in all of them, hold an explicit zero.
type matrix struct {
	months     []string
	categories []string
	cells      map[string][]float64
}

// buildMatrix lays rows out over window, the analysed months oldest first.
// The month axis starts at the first month with any spending and runs to the
// end of the window, so a user with a short history is not padded with
// leading zeros while gaps and a quiet recent stretch still count. Rows
// outside the window are ignored.
func buildMatrix(window []string, rows []core.AggregateRow) matrix {
	index := make(map[string]int, len(window))
	for i, month := range window {
		index[month] = i
	}

	first := len(window)
	categorySet := make(map[string]struct{})
	for _, r := range rows {
		i, ok := index[r.Month]
		if !ok {
			continue
		}
		categorySet[r.Category] = struct{}{}
		if i < first {
			first = i
		}
	}

	m := matrix{
		months:     window[first:],
		categories: sortedKeys(categorySet),
		cells:      make(map[string][]float64, len(categorySet)),
	}
	for _, c := range m.categories {
		m.cells[c] = make([]float64, len(m.months))
	}
	for _, r := range rows {
		if i, ok := index[r.Month]; ok {
			m.cells[r.Category][i-first] += float64(r.TotalCents)
		}
	}
	return m
}

// split returns the recent window and the window right before it.
func split(series []float64) (recent, previous []float64) {
	n := len(series)
	if n <= splitMonths {
		return series, nil
	}
	start := n - 2*splitMonths
	if start < 0 {
		start = 0
	}
	return series[n-splitMonths:], series[start : n-splitMonths]
}

func compare(series []float64) (core.TrendDirection, float64) {
	recent, previous := split(series)
	if len(previous) == 0 {
		return core.TrendInsufficientData, 0
	}
	return Classify(mean(recent), mean(previous))
}

// Analyze turns category+month aggregate rows into a trend result. window
// lists the analysed months (YYYY-MM) oldest first.
func Analyze(userID string, window []string, rows []core.AggregateRow) *core.TrendResult {
	result := &core.TrendResult{
		UserID:         userID,
		CategoryTrends: []core.CategoryTrend{},
		MonthlyTotals:  []core.MonthTotal{},
	}

	m := buildMatrix(window, rows)
	if len(m.categories) == 0 {
		result.NoData = true
		result.OverallTrend = core.TrendInsufficientData
		result.Insights = []string{"No expenses recorded in the analysis window."}
		return result
	}

	totals := make([]float64, len(m.months))
	for _, c := range m.categories {
		series := m.cells[c]
		for i, v := range series {
			totals[i] += v
		}

		trend := core.CategoryTrend{Category: c, Trend: core.TrendInsufficientData}
		if activeMonths(series) >= minActiveMonths {
			trend.AverageMonthly = round2(mean(series))
			trend.Trend, trend.PercentageChange = compare(series)
		}
		result.CategoryTrends = append(result.CategoryTrends, trend)
	}

	for i, month := range m.months {
		result.MonthlyTotals = append(result.MonthlyTotals, core.MonthTotal{Month: month, TotalCents: int64(totals[i])})
	}

	result.OverallTrend, result.OverallPercentageChange = compare(totals)
	result.Insights = insights(result, totals)
	return result
}

func insights(r *core.TrendResult, totals []float64) []string {
	recent, previous := split(totals)
	out := []string{overallInsight(r.OverallTrend, r.OverallPercentageChange, len(recent), len(previous))}

	var increasing, decreasing []core.CategoryTrend
	for _, t := range r.CategoryTrends {
		switch t.Trend {
		case core.TrendIncreasing:
			increasing = append(increasing, t)
		case core.TrendDecreasing:
			decreasing = append(decreasing, t)
		}
	}
	sort.SliceStable(increasing, func(i, j int) bool {
		if increasing[i].PercentageChange != increasing[j].PercentageChange {
			return increasing[i].PercentageChange > increasing[j].PercentageChange
		}
		return increasing[i].Category < increasing[j].Category
	})
	sort.SliceStable(decreasing, func(i, j int) bool {
		if decreasing[i].PercentageChange != decreasing[j].PercentageChange {
			return decreasing[i].PercentageChange < decreasing[j].PercentageChange
		}
		return decreasing[i].Category < decreasing[j].Category
	})

	for _, t := range head(increasing, maxInsightCategories) {
		out = append(out, fmt.Sprintf("Spending on %s increased by %.1f%%.", t.Category, t.PercentageChange))
	}
	for _, t := range head(decreasing, maxInsightCategories) {
		out = append(out, fmt.Sprintf("Spending on %s decreased by %.1f%%.", t.Category, math.Abs(t.PercentageChange)))
	}
	return out
}

func overallInsight(trend core.TrendDirection, change float64, recentMonths, previousMonths int) string {
	switch trend {
	case core.TrendIncreasing:
		return fmt.Sprintf("Your overall spending increased by %.1f%% in the last %d months compared to the %d months before.",
			change, recentMonths, previousMonths)
	case core.TrendDecreasing:
		return fmt.Sprintf("Your overall spending decreased by %.1f%% in the last %d months compared to the %d months before.",
			math.Abs(change), recentMonths, previousMonths)
	case core.TrendStable:
		return fmt.Sprintf("Your overall spending has been stable (%+.1f%%) over the last %d months.", change, recentMonths)
	default:
		return "Not enough history yet to identify an overall spending trend."
	}
}

func activeMonths(series []float64) int {
	n := 0
	for _, v := range series {
		if v != 0 {
			n++
		}
	}
	return n
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func head(ts []core.CategoryTrend, n int) []core.CategoryTrend {
	if len(ts) > n {
		return ts[:n]
	}
	return ts
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
