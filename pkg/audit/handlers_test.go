package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// mockStore for testing handlers
type mockStore struct {
	events     []*AuditEvent
	lastTenant tenancy.TenantContext
	lastFilter SearchFilter
	err        error
}

func (m *mockStore) Search(ctx context.Context, tc tenancy.TenantContext, filter SearchFilter) ([]*AuditEvent, error) {
	m.lastTenant = tc
	m.lastFilter = filter
	return m.events, m.err
}

func (m *mockStore) Get(ctx context.Context, tc tenancy.TenantContext, id int64) (*AuditEvent, error) {
	for _, event := range m.events {
		if event.ID == id {
			return event, nil
		}
	}
	return nil, ErrEventNotFound
}

func (m *mockStore) PurgeBefore(ctx context.Context, sc tenancy.ServiceContext, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestRouter(store Store, withTenant bool) *mux.Router {
	router := mux.NewRouter()
	sub := router.PathPrefix("/v1/orgs/{org_id}").Subrouter()
	if withTenant {
		sub.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tc := tenancy.TenantContext{OrgID: mux.Vars(r)["org_id"], UserID: testUserID, Role: tenancy.RoleAdmin}
				next.ServeHTTP(w, r.WithContext(tenancy.WithTenantContext(r.Context(), tc)))
			})
		})
	}
	NewHandlers(store).RegisterRoutes(sub)
	return router
}

func sampleEvents() []*AuditEvent {
	return []*AuditEvent{
		{
			ID:        1,
			Timestamp: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
			EventType: EventTypeProjectCreate,
			Status:    EventStatusSuccess,
			OrgID:     testOrgID,
			UserID:    testUserID,
		},
	}
}

func TestHandlers_ListEvents(t *testing.T) {
	store := &mockStore{events: sampleEvents()}
	router := newTestRouter(store, true)

	req := httptest.NewRequest("GET", "/v1/orgs/"+testOrgID+"/audit?limit=10&event_types=project.create,%20org.create&start_time=2026-01-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []*AuditEvent `json:"events"`
		Count  int           `json:"count"`
		Limit  int           `json:"limit"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, 10, body.Limit)

	assert.Equal(t, testOrgID, store.lastTenant.OrgID)
	assert.Equal(t, []EventType{EventTypeProjectCreate, EventTypeOrgCreate}, store.lastFilter.EventTypes)
	require.NotNil(t, store.lastFilter.StartTime)
}

func TestHandlers_ListEventsErrors(t *testing.T) {
	t.Run("missing tenant context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestRouter(&mockStore{}, false).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/orgs/"+testOrgID+"/audit", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad time", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestRouter(&mockStore{}, true).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/orgs/"+testOrgID+"/audit?start_time=yesterday", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid database context is a server error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		store := &mockStore{err: tenancy.ErrInvalidContext}
		newTestRouter(store, true).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/orgs/"+testOrgID+"/audit", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandlers_GetEvent(t *testing.T) {
	router := newTestRouter(&mockStore{events: sampleEvents()}, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/orgs/"+testOrgID+"/audit/1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/orgs/"+testOrgID+"/audit/99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_ExportEvents(t *testing.T) {
	router := newTestRouter(&mockStore{events: sampleEvents()}, true)

	tests := []struct {
		format      string
		wantStatus  int
		contentType string
		contains    string
	}{
		{"", http.StatusOK, "application/json", `"event_type": "project.create"`},
		{"ndjson", http.StatusOK, "application/x-ndjson", `"event_type":"project.create"`},
		{"csv", http.StatusOK, "text/csv", "ID,Timestamp,EventType"},
		{"xml", http.StatusBadRequest, "application/json", "unsupported export format"},
	}

	for _, tt := range tests {
		t.Run("format "+tt.format, func(t *testing.T) {
			url := "/v1/orgs/" + testOrgID + "/audit/export"
			if tt.format != "" {
				url += "?format=" + tt.format
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", url, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestExport(t *testing.T) {
	events := sampleEvents()

	t.Run("csv rows", func(t *testing.T) {
		data, err := Export(events, ExportFormatCSV)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[1], "2026-02-01T10:00:00Z")
		assert.Contains(t, lines[1], testOrgID)
	})

	t.Run("ndjson one line per event", func(t *testing.T) {
		data, err := Export(append(events, events[0]), ExportFormatNDJSON)
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(string(data), "\n"))
	})

	t.Run("json empty array", func(t *testing.T) {
		data, err := Export(nil, ExportFormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := Export(events, "yaml")
		assert.Error(t, err)
	})
}
