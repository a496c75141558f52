package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/foundry/pkg/audit"
	"github.com/platinummonkey/foundry/pkg/contextkeys"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

type stubResolver map[string]tenancy.Role

func (s stubResolver) ResolveRole(ctx context.Context, userID, orgID string) (tenancy.Role, error) {
	if userID == "broken" {
		return "", errors.New("database unavailable")
	}
	role, ok := s[userID+"|"+orgID]
	if !ok {
		return "", tenancy.ErrNotMember
	}
	return role, nil
}

func TestPermissionChecker(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	checker := NewPermissionChecker(stubResolver{
		"u1|o1": tenancy.RoleMember,
		"u1|o2": tenancy.RoleOwner,
	}, NewPolicyStore(nil), metrics)
	ctx := context.Background()

	t.Run("permissions follow the active organization", func(t *testing.T) {
		role, perms, err := checker.Permissions(ctx, "u1", "o1")
		require.NoError(t, err)
		assert.Equal(t, tenancy.RoleMember, role)
		assert.False(t, perms.Has(PermProjectsDelete))

		role, perms, err = checker.Permissions(ctx, "u1", "o2")
		require.NoError(t, err)
		assert.Equal(t, tenancy.RoleOwner, role)
		assert.True(t, perms.Has(PermProjectsDelete))
	})

	t.Run("non-member", func(t *testing.T) {
		_, _, err := checker.Permissions(ctx, "u2", "o1")
		assert.ErrorIs(t, err, tenancy.ErrNotMember)

		result, err := checker.CheckPermission(ctx, "u2", "o1", PermProjectsRead)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
	})

	t.Run("resolver failure", func(t *testing.T) {
		_, err := checker.CheckPermission(ctx, "broken", "o1", PermProjectsRead)
		assert.ErrorContains(t, err, "failed to resolve role")
	})

	t.Run("decisions are counted", func(t *testing.T) {
		before := testutil.ToFloat64(metrics.PermissionChecksTotal.WithLabelValues("allowed"))
		result, err := checker.CheckPermission(ctx, "u1", "o1", PermProjectsWrite)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.PermissionChecksTotal.WithLabelValues("allowed")))
	})
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

func TestPermissionMiddleware(t *testing.T) {
	pm := NewPermissionMiddleware(NewPolicyStore(nil), nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	serve := func(ctx context.Context, mw func(http.Handler) http.Handler) *httptest.ResponseRecorder {
		req := httptest.NewRequest("DELETE", "/v1/orgs/o1/projects/p1", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		mw(ok).ServeHTTP(rec, req)
		return rec
	}

	tenantCtx := func(role tenancy.Role) context.Context {
		return tenancy.WithTenantContext(context.Background(), tenancy.TenantContext{OrgID: "o1", UserID: "u1", Role: role})
	}

	t.Run("missing tenant context", func(t *testing.T) {
		rec := serve(context.Background(), pm.RequirePermission(PermProjectsDelete))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("role policy allows", func(t *testing.T) {
		rec := serve(tenantCtx(tenancy.RoleAdmin), pm.RequirePermission(PermProjectsDelete))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("denied is audited", func(t *testing.T) {
		sink := &recordingAuditLogger{}
		ctx := audit.WithLogger(tenantCtx(tenancy.RoleMember), sink)

		rec := serve(ctx, pm.RequirePermission(PermProjectsDelete))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error":"insufficient permissions"}`, rec.Body.String())

		require.Len(t, sink.events, 1)
		assert.Equal(t, audit.EventTypeAuthzAccessDenied, sink.events[0].EventType)
		assert.Equal(t, "projects:delete", sink.events[0].ResourceID)
		assert.Equal(t, "o1", sink.events[0].OrgID)
	})

	t.Run("any of", func(t *testing.T) {
		rec := serve(tenantCtx(tenancy.RoleMember), pm.RequireAnyPermission(PermProjectsDelete, PermProjectsWrite))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("attached permission set wins over role", func(t *testing.T) {
		ctx := contextkeys.WithPermissions(tenantCtx(tenancy.RoleOwner), []string{PermProjectsRead})
		rec := serve(ctx, pm.RequirePermission(PermProjectsDelete))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
