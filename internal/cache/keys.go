package cache

// Cache keys live here so the naming scheme does not spread across packages.
// Layout: {domain}:{userID}[:{period}]. Prefixes used for bulk invalidation
// end with ':' so one user's prefix never matches another user's keys.
const (
	domainMonthlySummary   = "monthly_summary"
	domainAnalyticsSummary = "analytics_summary"
	domainTrends           = "spending_trends"
	domainTrendsProcessing = "spending_trends_processing"
	domainReportSent       = "report_sent"
)

func KeyMonthlySummary(userID, period string) string {
	return MonthlySummaryPrefix(userID) + period
}

// MonthlySummaryPrefix matches every monthly summary of a user.
func MonthlySummaryPrefix(userID string) string {
	return domainMonthlySummary + ":" + userID + ":"
}

func KeyAnalyticsSummary(userID string) string { return domainAnalyticsSummary + ":" + userID }

// KeyTrendResult holds the latest completed trend analysis.
func KeyTrendResult(userID string) string { return domainTrends + ":" + userID }

// KeyTrendLease is the processing marker of a running trend analysis.
func KeyTrendLease(userID string) string { return domainTrendsProcessing + ":" + userID }

// KeyReportSent marks the send_report job jobID as delivered.
func KeyReportSent(userID, jobID string) string {
	return domainReportSent + ":" + userID + ":" + jobID
}
