package audit

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/foundry/pkg/httputil"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// Handlers provides HTTP handlers for the audit log API.
// Routes expect the tenant context and the audit:read check to be applied
// by middleware in front of them.
type Handlers struct {
	store Store
}

// NewHandlers creates new audit handlers
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// Routes paths relative to an organization subrouter
const (
	RouteListEvents  = "/audit"
	RouteGetEvent    = "/audit/{event_id:[0-9]+}"
	RouteExportEvent = "/audit/export"
)

// RegisterRoutes registers audit log routes on an organization-scoped subrouter
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(RouteListEvents, h.ListEvents).Methods(http.MethodGet)
	router.HandleFunc(RouteExportEvent, h.ExportEvents).Methods(http.MethodGet)
	router.HandleFunc(RouteGetEvent, h.GetEvent).Methods(http.MethodGet)
}

// ListEvents handles GET /v1/orgs/{org_id}/audit
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := h.store.Search(r.Context(), tc, filter)
	if err != nil {
		logStoreError(r, err)
		httputil.WriteStorageError(w, err)
		return
	}

	filter.normalize()
	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetEvent handles GET /v1/orgs/{org_id}/audit/{event_id}
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	id, err := httputil.ParsePathInt64(r, "event_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	event, err := h.store.Get(r.Context(), tc, id)
	if err != nil {
		logStoreError(r, err)
		httputil.WriteStorageError(w, err)
		return
	}

	httputil.WriteSuccess(w, event)
}

// ExportEvents handles GET /v1/orgs/{org_id}/audit/export
func (h *Handlers) ExportEvents(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	format := ExportFormat(httputil.ParseQueryString(r, "format", string(ExportFormatJSON)))
	switch format {
	case ExportFormatJSON, ExportFormatNDJSON, ExportFormatCSV:
	default:
		httputil.WriteBadRequest(w, fmt.Sprintf("unsupported export format: %q", format))
		return
	}

	events, err := h.store.Search(r.Context(), tc, filter)
	if err != nil {
		logStoreError(r, err)
		httputil.WriteStorageError(w, err)
		return
	}

	data, err := Export(events, format)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to export audit events")
		httputil.WriteInternalError(w)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=audit-%s.%s", tc.OrgID, format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func tenantOrError(w http.ResponseWriter, r *http.Request) (tenancy.TenantContext, bool) {
	tc, err := tenancy.TenantContextFrom(r.Context())
	if err != nil {
		httputil.WriteUnauthorized(w, "organization context required")
		return tenancy.TenantContext{}, false
	}
	return tc, true
}

func logStoreError(r *http.Request, err error) {
	if httputil.StorageErrorStatus(err) >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Error("Audit store query failed")
	}
}

// parseFilter parses search filter from query parameters
func parseFilter(r *http.Request) (SearchFilter, error) {
	var filter SearchFilter
	var err error

	if filter.StartTime, err = httputil.ParseQueryTime(r, "start_time"); err != nil {
		return filter, err
	}
	if filter.EndTime, err = httputil.ParseQueryTime(r, "end_time"); err != nil {
		return filter, err
	}

	query := r.URL.Query()
	filter.UserID = query.Get("user_id")
	filter.Status = EventStatus(query.Get("status"))
	filter.ResourceType = ResourceType(query.Get("resource_type"))
	filter.ResourceID = query.Get("resource_id")

	for _, et := range httputil.ParseQueryList(r, "event_types") {
		filter.EventTypes = append(filter.EventTypes, EventType(et))
	}

	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", defaultSearchLimit); err != nil {
		return filter, err
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return filter, err
	}

	return filter, nil
}
