package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/foundry/pkg/contextkeys"
)

func TestMiddleware_Handler(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		status  int
		logAll  bool
		wantLog bool
		want    EventStatus
	}{
		{"plain read skipped", "GET", "/v1/orgs/o/projects", http.StatusOK, false, false, ""},
		{"read logged when logging all", "GET", "/v1/orgs/o/projects", http.StatusOK, true, true, EventStatusSuccess},
		{"mutation logged", "POST", "/v1/orgs/o/projects", http.StatusCreated, false, true, EventStatusSuccess},
		{"forbidden logged as denied", "GET", "/v1/orgs/o/members", http.StatusForbidden, false, true, EventStatusDenied},
		{"server error logged as failure", "GET", "/v1/orgs/o/members", http.StatusInternalServerError, false, true, EventStatusFailure},
		{"audit read is sensitive", "GET", "/v1/orgs/o/audit", http.StatusOK, false, true, EventStatusSuccess},
		{"token listing is sensitive", "GET", "/v1/tokens", http.StatusOK, false, true, EventStatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &mockLogger{}
			mw := NewMiddleware(sink, nil, tt.logAll)

			var sawLogger bool
			handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, sawLogger = FromContext(r.Context()).(*mockLogger)
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req = req.WithContext(contextkeys.WithRequestID(req.Context(), "req-9"))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.True(t, sawLogger)
			assert.Equal(t, tt.status, rec.Code)

			if !tt.wantLog {
				time.Sleep(20 * time.Millisecond)
				assert.Empty(t, sink.Events())
				return
			}

			require.Eventually(t, func() bool { return len(sink.Events()) == 1 }, time.Second, 5*time.Millisecond)
			event := sink.Events()[0]
			assert.Equal(t, EventTypeHTTPRequest, event.EventType)
			assert.Equal(t, tt.want, event.Status)
			assert.Equal(t, tt.status, event.StatusCode)
			assert.Equal(t, tt.path, event.Path)
			assert.Equal(t, "req-9", event.RequestID)
			assert.Contains(t, event.Metadata, "duration_ms")
		})
	}
}
