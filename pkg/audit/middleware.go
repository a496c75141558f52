package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/foundry/pkg/async"
	"github.com/platinummonkey/foundry/pkg/observability"
)

const requestLogTimeout = 5 * time.Second

// Middleware provides HTTP middleware for audit logging
type Middleware struct {
	logger         Logger
	appLogger      *observability.Logger
	logAllRequests bool // If false, only log mutations, failures and sensitive paths
}

// NewMiddleware creates a new audit middleware
func NewMiddleware(logger Logger, appLogger *observability.Logger, logAllRequests bool) *Middleware {
	if appLogger == nil {
		appLogger = observability.NopLogger()
	}
	return &Middleware{
		logger:         logger,
		appLogger:      appLogger,
		logAllRequests: logAllRequests,
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler wraps an HTTP handler with audit logging
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ctx := WithLogger(r.Context(), m.logger)
		ctx = WithRequestStartTime(ctx, startTime)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		r = r.WithContext(ctx)

		next.ServeHTTP(wrapped, r)

		if !m.logAllRequests && !shouldLogRequest(r, wrapped.statusCode) {
			return
		}

		// Inner handlers attach the tenant context to their own request copy,
		// so the event carries the request fields known at this layer.
		event := NewEvent(ctx, EventTypeHTTPRequest, statusFor(wrapped.statusCode)).withRequest(r)
		event.StatusCode = wrapped.statusCode
		event.Metadata = map[string]interface{}{"duration_ms": time.Since(startTime).Milliseconds()}

		async.SafeGoTimeout(ctx, m.appLogger, requestLogTimeout, "audit-http-request", func(ctx context.Context) error {
			return m.logger.Log(ctx, event)
		})
	})
}

func statusFor(statusCode int) EventStatus {
	switch {
	case statusCode == http.StatusForbidden:
		return EventStatusDenied
	case statusCode >= 400:
		return EventStatusFailure
	default:
		return EventStatusSuccess
	}
}

// shouldLogRequest determines if a request should be logged
func shouldLogRequest(r *http.Request, statusCode int) bool {
	// Always log mutations
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return true
	}

	// Always log errors and denials
	if statusCode >= 400 {
		return true
	}

	return isSensitivePath(r.URL.Path)
}

var sensitivePaths = []string{"/v1/tokens", "/v1/auth"}

func isSensitivePath(path string) bool {
	if strings.HasSuffix(path, "/audit") {
		return true
	}
	for _, prefix := range sensitivePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
