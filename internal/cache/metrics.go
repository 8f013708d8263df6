package cache

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spese",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache reads that found a value, by key domain.",
	}, []string{"domain"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spese",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cache reads that found nothing or failed, by key domain.",
	}, []string{"domain"})
	cacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spese",
		Subsystem: "cache",
		Name:      "errors_total",
		Help:      "Substrate errors absorbed by the coordinator, by operation.",
	}, []string{"op"})
	cacheInvalidatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spese",
		Subsystem: "cache",
		Name:      "invalidated_keys_total",
		Help:      "Keys removed by prefix invalidation.",
	})
)

// keyDomain returns the domain segment of a key, the part before the first ':'.
func keyDomain(key string) string {
	domain, _, _ := strings.Cut(key, ":")
	return domain
}
