package worker

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spese-analytics/internal/amqp"
)

var (
	jobsHandledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spese",
		Subsystem: "worker",
		Name:      "jobs_handled_total",
		Help:      "Jobs handled by the dispatcher, by type and result.",
	}, []string{"type", "result"})
	jobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spese",
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "Time spent handling a job, by type.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})
	reportsScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spese",
		Subsystem: "worker",
		Name:      "reports_scheduled_total",
		Help:      "send_report jobs enqueued by the monthly schedule.",
	})
)

// jobTypeLabel keeps the type label bounded to the known job types.
func jobTypeLabel(t amqp.JobType) string {
	if _, err := amqp.QueueFor(t); err != nil {
		return "unknown"
	}
	return string(t)
}

func observeJob(t amqp.JobType, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	label := jobTypeLabel(t)
	jobsHandledTotal.WithLabelValues(label, result).Inc()
	jobDurationSeconds.WithLabelValues(label).Observe(time.Since(start).Seconds())
}

// NewMetricsServer returns a server exposing the process metrics on
// GET /metrics.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
