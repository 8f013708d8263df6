package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateLimitRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spese",
		Subsystem: "http",
		Name:      "rate_limit_rejections_total",
		Help:      "Mutating requests rejected by the per-client rate limiter.",
	})
	rateLimitClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "spese",
		Subsystem: "http",
		Name:      "rate_limit_clients",
		Help:      "Client addresses currently tracked by the rate limiter.",
	})
	suspiciousRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spese",
		Subsystem: "http",
		Name:      "suspicious_requests_total",
		Help:      "Requests flagged as suspicious, by reason.",
	}, []string{"reason"})
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spese",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Handled requests by method and status class.",
	}, []string{"method", "status"})
)

// statusClass collapses a status code into its class label (2xx, 4xx, ...).
func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// methodLabel keeps the method label bounded to the methods the API serves.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodHead:
		return method
	}
	return "OTHER"
}
