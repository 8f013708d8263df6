package http

import (
	"net/http"

	"spese-analytics/internal/core"
	"spese-analytics/internal/log"
)

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		s.respondError(w, r, log.OpRead, "", err)
		return
	}
	period, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		s.respondError(w, r, log.OpRead, userID, err)
		return
	}

	summary, err := s.deps.Summaries.MonthlySummary(r.Context(), userID, period)
	if err != nil {
		s.respondError(w, r, log.OpRead, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		s.respondError(w, r, log.OpRead, "", err)
		return
	}

	summary, err := s.deps.Summaries.AnalyticsSummary(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, log.OpRead, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleTriggerAnalysis answers 200 with the cached result when one exists
// and 202 while an analysis is queued or running.
func (s *Server) handleTriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		s.respondError(w, r, log.OpTrigger, "", err)
		return
	}
	force, err := parseForce(r.URL.Query())
	if err != nil {
		s.respondError(w, r, log.OpTrigger, userID, err)
		return
	}

	status, err := s.deps.Analysis.Trigger(r.Context(), userID, force)
	if err != nil {
		s.respondError(w, r, log.OpTrigger, userID, err)
		return
	}

	code := http.StatusAccepted
	if status.State == core.AnalysisCompleted {
		code = http.StatusOK
	}
	writeJSON(w, code, status)
}

func (s *Server) handleAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		s.respondError(w, r, log.OpRead, "", err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Analysis.Status(r.Context(), userID))
}

func (s *Server) handleRequestReport(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		s.respondError(w, r, log.OpEnqueue, "", err)
		return
	}

	var req reportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, log.OpEnqueue, userID, err)
		return
	}
	period, err := req.period(s.now())
	if err != nil {
		s.respondError(w, r, log.OpEnqueue, userID, err)
		return
	}
	recipient := sanitizeInput(req.Recipient)

	job, err := s.deps.Reports.RequestReport(r.Context(), userID, period, recipient)
	if err != nil {
		s.respondError(w, r, log.OpEnqueue, userID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, reportResponse{JobID: job.ID, Period: period.String(), Recipient: recipient})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		s.respondError(w, r, log.OpUpdate, "", err)
		return
	}

	var req subscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, log.OpUpdate, userID, err)
		return
	}

	sub := core.ReportSubscription{UserID: userID, Recipient: sanitizeInput(req.Recipient)}
	if err := s.deps.Reports.Subscribe(r.Context(), sub); err != nil {
		s.respondError(w, r, log.OpUpdate, userID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
