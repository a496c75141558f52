package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{"valid JSON", `{"name": "api"}`, false},
		{"invalid JSON", `{invalid}`, true},
		{"unknown field", `{"name": "api", "org_id": "x"}`, true},
		{"empty body", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", strings.NewReader(tt.body))
			var dest payload

			err := ParseJSON(req, &dest)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "api", dest.Name)
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	req := httptest.NewRequest("POST", "/test", strings.NewReader(`{bad`))
	rec := httptest.NewRecorder()
	var dest map[string]string

	assert.False(t, ParseJSONOrError(rec, req, &dest))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON")
}

func TestParsePathUUID(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		want    string
		wantErr string
	}{
		{"canonical", map[string]string{"org_id": "0B8F2D8E-1C55-4D3E-9A57-9F3A7C0E1A01"}, "0b8f2d8e-1c55-4d3e-9a57-9f3a7c0e1a01", ""},
		{"missing", map[string]string{}, "", "missing path parameter: org_id"},
		{"malformed", map[string]string{"org_id": "acme"}, "", "invalid UUID for org_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mux.SetURLVars(httptest.NewRequest("GET", "/", nil), tt.vars)
			got, err := ParsePathUUID(req, "org_id")
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("or error", func(t *testing.T) {
		req := mux.SetURLVars(httptest.NewRequest("GET", "/", nil), map[string]string{"project_id": "1"})
		rec := httptest.NewRecorder()
		_, ok := ParsePathUUIDOrError(rec, req, "project_id")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestParsePathInt64(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest("GET", "/", nil), map[string]string{"event_id": "42"})
	got, err := ParsePathInt64(req, "event_id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	req = mux.SetURLVars(req, map[string]string{"event_id": "x"})
	_, err = ParsePathInt64(req, "event_id")
	assert.Error(t, err)
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest("GET", "/audit?limit=25&status=denied&event_type=org.create,%20,project.delete&start_time=2026-01-02T03:04:05Z&bad=x", nil)

	limit, err := ParseQueryInt(req, "limit", 100)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	offset, err := ParseQueryInt(req, "offset", 0)
	require.NoError(t, err)
	assert.Zero(t, offset)

	_, err = ParseQueryInt(req, "bad", 0)
	assert.Error(t, err)

	assert.Equal(t, "denied", ParseQueryString(req, "status", ""))
	assert.Equal(t, "json", ParseQueryString(req, "format", "json"))

	assert.Equal(t, []string{"org.create", "project.delete"}, ParseQueryList(req, "event_type"))
	assert.Nil(t, ParseQueryList(req, "missing"))

	start, err := ParseQueryTime(req, "start_time")
	require.NoError(t, err)
	require.NotNil(t, start)
	assert.True(t, start.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	end, err := ParseQueryTime(req, "end_time")
	require.NoError(t, err)
	assert.Nil(t, end)

	_, err = ParseQueryTime(req, "bad")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("content type", func(t *testing.T) {
		h := ContentTypeMiddleware(ok)
		tests := []struct {
			method, contentType string
			want                int
		}{
			{"POST", "application/json", http.StatusOK},
			{"POST", "application/json; charset=utf-8", http.StatusOK},
			{"PATCH", "text/plain", http.StatusBadRequest},
			{"POST", "", http.StatusOK},
			{"GET", "text/plain", http.StatusOK},
		}
		for _, tt := range tests {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, "%s %q", tt.method, tt.contentType)
		}
	})

	t.Run("chain order", func(t *testing.T) {
		var order []string
		mw := func(name string) func(http.Handler) http.Handler {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}
		Chain(mw("outer"), mw("inner"))(ok).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, []string{"outer", "inner"}, order)
	})

	t.Run("max bytes", func(t *testing.T) {
		h := MaxBytesMiddleware(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var dest map[string]string
			ParseJSONOrError(w, r, &dest)
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"far too long"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
