package http

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ledger/internal/log"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the request ID stored by the server middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestIDFrom accepts a well-formed incoming X-Request-ID and
// otherwise mints a new one.
func requestIDFrom(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	return uuid.NewString()
}

// withRequestContext assigns a request ID, attaches a request logger,
// sets security headers and logs the completed request.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	withLogger := log.Middleware(s.logger)(log.RequestIDMiddleware(func(r *http.Request) string {
		return RequestID(r.Context())
	})(next))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := requestIDFrom(r)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		h := w.Header()
		h.Set("X-Request-ID", requestID)
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		withLogger.ServeHTTP(rw, r)

		ctx := log.NewContext(r.Context(), s.logger.With(log.FieldRequestID, requestID))
		s.sl.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), extractClientIP(r))
	})
}

// withAPI applies probing detection, the rate limit on mutating methods
// and basic auth when credentials are configured.
func (s *Server) withAPI(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientIP := extractClientIP(r)
		logger := log.FromContext(ctx)

		if isSuspicious(r, s.metrics) {
			logger.WarnContext(ctx, "Suspicious request", log.FieldClientIP, clientIP, log.FieldPath, r.URL.Path)
		}

		if s.rateLimiter != nil && isMutating(r.Method) {
			if ok, wait := s.rateLimiter.allow(clientIP, s.metrics); !ok {
				logger.WarnContext(ctx, "Rate limit exceeded",
					log.FieldComponent, log.ComponentRateLimit,
					log.FieldClientIP, clientIP,
					log.FieldMethod, r.Method)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}

		if s.cfg.Username != "" && !checkBasicAuth(r, s.cfg.Username, s.cfg.Password) {
			s.metrics.authFailure()
			w.Header().Set("WWW-Authenticate", `Basic realm="ledger"`)
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		next(w, r)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
