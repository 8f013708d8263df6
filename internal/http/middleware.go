package http

import (
	"net/http"
	"time"

	"spese-analytics/internal/log"
)

// withMiddleware adds request IDs, request logging, rate limiting of
// mutating requests, and security headers.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = generateRequestID()
		}
		reqLogger := s.logger.Logger().With(log.FieldRequestID, requestID)
		ctx := log.WithLogger(r.Context(), reqLogger)
		r = r.WithContext(ctx)

		w.Header().Set("X-Request-ID", requestID)
		setSecurityHeaders(w)

		s.logger.LogHTTPStart(ctx, r, clientIP)

		if reason, ok := suspiciousReason(r); ok {
			suspiciousRequestsTotal.WithLabelValues(reason).Inc()
			reqLogger.WarnContext(ctx, "Suspicious request detected",
				"reason", reason,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, clientIP,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			reqLogger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			requestsTotal.WithLabelValues(methodLabel(r.Method), statusClass(http.StatusTooManyRequests)).Inc()
			s.logger.LogHTTPEnd(ctx, r, http.StatusTooManyRequests, time.Since(start).Milliseconds(), clientIP)
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		requestsTotal.WithLabelValues(methodLabel(r.Method), statusClass(rw.statusCode)).Inc()
		s.logger.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func setSecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Cache-Control", "no-store")
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
