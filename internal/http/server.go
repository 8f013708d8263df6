// Package http exposes the expense and analytics API over JSON.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/core"
	"spese-analytics/internal/log"
)

// ExpenseWriter records expense mutations.
type ExpenseWriter interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, userID string, id int64) error
}

// SummaryReader serves cached spending summaries.
type SummaryReader interface {
	MonthlySummary(ctx context.Context, userID string, period core.Period) (core.MonthlySummary, error)
	AnalyticsSummary(ctx context.Context, userID string) (core.AnalyticsSummary, error)
}

// AnalysisRunner triggers trend analyses and reports their state.
type AnalysisRunner interface {
	Trigger(ctx context.Context, userID string, force bool) (core.AnalysisStatus, error)
	Status(ctx context.Context, userID string) core.AnalysisStatus
}

// ReportRequester queues report deliveries and stores subscriptions.
type ReportRequester interface {
	RequestReport(ctx context.Context, userID string, period core.Period, recipient string) (*amqp.Job, error)
	Subscribe(ctx context.Context, sub core.ReportSubscription) error
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Expenses  ExpenseWriter
	Summaries SummaryReader
	Analysis  AnalysisRunner
	Reports   ReportRequester
	Checks    map[string]func(ctx context.Context) error
	Logger    *log.Logger
}

type Server struct {
	http.Server
	deps        Deps
	logger      *log.StructuredLogger
	rateLimiter *rateLimiter
	started     time.Time
	now         func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		deps:        deps,
		logger:      log.NewStructuredLogger(deps.Logger),
		rateLimiter: newRateLimiter(defaultRequestsPerMinute),
		started:     time.Now(),
		now:         time.Now,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/users/{userID}/expenses", s.handleCreateExpense)
	mux.HandleFunc("PUT /api/users/{userID}/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/users/{userID}/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/users/{userID}/summary/monthly", s.handleMonthlySummary)
	mux.HandleFunc("GET /api/users/{userID}/summary", s.handleAnalyticsSummary)

	mux.HandleFunc("POST /api/users/{userID}/analysis", s.handleTriggerAnalysis)
	mux.HandleFunc("GET /api/users/{userID}/analysis", s.handleAnalysisStatus)

	mux.HandleFunc("POST /api/users/{userID}/reports", s.handleRequestReport)
	mux.HandleFunc("PUT /api/users/{userID}/report-subscription", s.handleSubscribe)

	s.Handler = s.withMiddleware(mux)
	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
