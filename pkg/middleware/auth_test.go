package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/foundry/pkg/audit"
	"github.com/platinummonkey/foundry/pkg/auth"
	"github.com/platinummonkey/foundry/pkg/contextkeys"
)

type stubValidator struct {
	principals map[string]*auth.Principal
	err        error
	seen       []string
}

func (s *stubValidator) ValidateToken(ctx context.Context, token string) (*auth.Principal, error) {
	s.seen = append(s.seen, token)
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.principals[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return p, nil
}

type recordingAuditLogger struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (r *recordingAuditLogger) Log(ctx context.Context, event *audit.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAuditLogger) Close() error { return nil }

func principalEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		require.True(t, ok)
		w.Header().Set("X-User", p.UserID)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthMiddleware(t *testing.T) {
	validator := &stubValidator{principals: map[string]*auth.Principal{
		"fdy_good": {UserID: "user-1", Email: "ada@example.com", TokenID: "token-1"},
	}}

	tests := []struct {
		name       string
		header     string
		optional   bool
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer fdy_good", false, http.StatusNoContent, ""},
		{"scheme is case-insensitive", "bearer fdy_good", false, http.StatusNoContent, ""},
		{"missing header", "", false, http.StatusUnauthorized, `{"error":"missing authorization header"}`},
		{"basic auth", "Basic dXNlcjpwYXNz", false, http.StatusUnauthorized, `{"error":"invalid authorization header format"}`},
		{"no token", "Bearer ", false, http.StatusUnauthorized, `{"error":"invalid authorization header format"}`},
		{"unknown token", "Bearer fdy_bad", false, http.StatusUnauthorized, `{"error":"invalid or expired token"}`},
		{"unknown token with optional auth", "Bearer fdy_bad", true, http.StatusUnauthorized, `{"error":"invalid or expired token"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthMiddleware(validator, tt.optional).Handler(principalEcho(t))
			req := httptest.NewRequest("GET", "/v1/organizations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, "user-1", rec.Header().Get("X-User"))
			}
		})
	}
}

func TestAuthMiddleware_Optional(t *testing.T) {
	called := false
	handler := NewAuthMiddleware(&stubValidator{}, true).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := auth.PrincipalFrom(r.Context())
		assert.False(t, ok)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
	assert.True(t, called)
}

func TestAuthMiddleware_RejectionIsAudited(t *testing.T) {
	sink := &recordingAuditLogger{}
	handler := NewAuthMiddleware(&stubValidator{err: auth.ErrTokenRevoked}, false).Handler(principalEcho(t))

	req := httptest.NewRequest("GET", "/v1/organizations", nil)
	req.Header.Set("Authorization", "Bearer fdy_revoked")
	req = req.WithContext(audit.WithLogger(contextkeys.WithRequestID(req.Context(), "req-9"), sink))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.EventTypeAuthTokenValidateFail, sink.events[0].EventType)
	assert.Equal(t, audit.EventStatusFailure, sink.events[0].Status)
	assert.Equal(t, "req-9", sink.events[0].RequestID)
	assert.NotContains(t, sink.events[0].Message, "fdy_revoked")
}

func TestAuthMiddleware_StorageFailure(t *testing.T) {
	sink := &recordingAuditLogger{}
	handler := NewAuthMiddleware(&stubValidator{err: errors.New("connection refused")}, false).Handler(principalEcho(t))

	req := httptest.NewRequest("GET", "/v1/organizations", nil)
	req.Header.Set("Authorization", "Bearer fdy_good")
	req = req.WithContext(audit.WithLogger(req.Context(), sink))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Empty(t, sink.events)
}

func TestRequirePrincipal(t *testing.T) {
	handler := RequirePrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{UserID: "user-1"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
