package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/core"
	"spese-analytics/internal/log"
	"spese-analytics/internal/storage"
)

var errInvalidParam = errors.New("invalid parameter")

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: w.Header().Get("X-Request-ID")})
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errInvalidParam), errors.Is(err, errInvalidBody), core.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, amqp.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error, hiding internal details on 5xx.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, operation, userID string, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.LogError(r.Context(), "Request failed", err, operation, log.NewFields().WithUser(userID))
		msg = http.StatusText(status)
	}
	writeError(w, status, msg)
}

// userIDFromPath reads the {userID} path segment. Ids that cannot be used as
// a cache key segment are rejected.
func userIDFromPath(r *http.Request) (string, error) {
	userID := sanitizeInput(r.PathValue("userID"))
	if err := core.ValidateUserID(userID); err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidParam, err)
	}
	return userID, nil
}

// expenseIDFromPath reads the positive {id} path segment.
func expenseIDFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: expense id %q", errInvalidParam, r.PathValue("id"))
	}
	return id, nil
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
