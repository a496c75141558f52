package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/foundry/pkg/orgs"
	"github.com/platinummonkey/foundry/pkg/projects"
	"github.com/platinummonkey/foundry/pkg/rbac"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

const testToken = "fdy_testtoken"

type fakeAPI struct {
	orgFetches atomic.Int32
	lastBody   map[string]interface{}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") != "Bearer "+testToken {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}
			if req.Body != nil && req.ContentLength > 0 {
				f.lastBody = map[string]interface{}{}
				require.NoError(t, json.NewDecoder(req.Body).Decode(&f.lastBody))
			}
			next.ServeHTTP(w, req)
		})
	})

	orgsByID := map[string]*orgs.Organization{
		"org-a": {ID: "org-a", Name: "Acme", Role: tenancy.RoleViewer, Permissions: []string{"organization:read", "members:read", "projects:read"}},
		"org-b": {ID: "org-b", Name: "Beta", Role: tenancy.RoleAdmin, Permissions: []string{"organization:*", "members:*", "projects:*", "audit:read"}},
	}

	r.HandleFunc("/v1/organizations", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"organizations": []*orgs.Organization{orgsByID["org-a"], orgsByID["org-b"]}})
	}).Methods("GET")
	r.HandleFunc("/v1/organizations", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusCreated, &orgs.Organization{ID: "org-new", Name: f.lastBody["name"].(string), Role: tenancy.RoleOwner})
	}).Methods("POST")
	r.HandleFunc("/v1/orgs/{org_id}", func(w http.ResponseWriter, req *http.Request) {
		f.orgFetches.Add(1)
		org, ok := orgsByID[mux.Vars(req)["org_id"]]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, org)
	}).Methods("GET")
	r.HandleFunc("/v1/orgs/{org_id}/projects", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"projects": []*projects.Project{{ID: "p1", OrgID: mux.Vars(req)["org_id"], Name: "api"}}})
	}).Methods("GET")
	r.HandleFunc("/v1/orgs/{org_id}/projects", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "validation failed", "details": map[string]string{"name": "required"}})
	}).Methods("POST")
	r.HandleFunc("/v1/orgs/{org_id}/projects/{project_id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
	}).Methods("DELETE")
	r.HandleFunc("/v1/orgs/{org_id}/members/{user_id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("DELETE")
	r.HandleFunc("/v1/orgs/{org_id}/members/{user_id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, &orgs.Member{OrgID: mux.Vars(req)["org_id"], UserID: mux.Vars(req)["user_id"], Role: tenancy.Role(f.lastBody["role"].(string))})
	}).Methods("PATCH")
	r.HandleFunc("/v1/tokens", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": "t1", "token_prefix": "fdy_abcdefgh", "token": "fdy_secret"})
	}).Methods("POST")
	return r
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", testToken), api
}

func TestClient(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	t.Run("list organizations", func(t *testing.T) {
		list, err := c.ListOrganizations(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Acme", list[0].Name)
	})

	t.Run("create organization sends body", func(t *testing.T) {
		org, err := c.CreateOrganization(ctx, orgs.CreateOrganizationRequest{Name: "Gamma"})
		require.NoError(t, err)
		assert.Equal(t, "Gamma", org.Name)
		assert.Equal(t, tenancy.RoleOwner, org.Role)
	})

	t.Run("non-member is not found", func(t *testing.T) {
		_, err := c.GetOrganization(ctx, "org-z")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("validation details", func(t *testing.T) {
		_, err := c.CreateProject(ctx, "org-b", projects.CreateRequest{})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "required", apiErr.Details["name"])
	})

	t.Run("forbidden", func(t *testing.T) {
		err := c.DeleteProject(ctx, "org-a", "p1")
		assert.True(t, IsForbidden(err))
		assert.ErrorContains(t, err, "insufficient permissions")
	})

	t.Run("projects", func(t *testing.T) {
		list, err := c.ListProjects(ctx, "org-a")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "org-a", list[0].OrgID)
	})

	t.Run("members", func(t *testing.T) {
		member, err := c.UpdateMemberRole(ctx, "org-b", "u2", tenancy.RoleMember)
		require.NoError(t, err)
		assert.Equal(t, tenancy.RoleMember, member.Role)
		assert.Equal(t, "MEMBER", api.lastBody["role"])

		require.NoError(t, c.RemoveMember(ctx, "org-b", "u2"))
	})

	t.Run("create token", func(t *testing.T) {
		token, err := c.CreateToken(ctx, "ci", nil)
		require.NoError(t, err)
		assert.Equal(t, "fdy_secret", token.Token)
		assert.Equal(t, "t1", token.ID)
		assert.Equal(t, "ci", api.lastBody["description"])
	})

	t.Run("bad token", func(t *testing.T) {
		bad := NewClient(c.BaseURL, "fdy_wrong")
		_, err := bad.ListOrganizations(ctx)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})
}

func TestSession(t *testing.T) {
	c, api := newTestClient(t)
	s := NewSession(c)
	ctx := context.Background()

	t.Run("nothing granted before switching", func(t *testing.T) {
		assert.False(t, s.Can(rbac.PermOrganizationRead))
		assert.Nil(t, s.Organization())
		_, err := s.OrgID()
		assert.ErrorIs(t, err, ErrNoActiveOrganization)
		assert.ErrorIs(t, s.Refresh(ctx), ErrNoActiveOrganization)
	})

	t.Run("viewer", func(t *testing.T) {
		org, err := s.SwitchOrganization(ctx, "org-a")
		require.NoError(t, err)
		assert.Equal(t, "org-a", org.ID)
		assert.Equal(t, tenancy.RoleViewer, s.Role())
		assert.True(t, s.Can(rbac.PermProjectsRead))
		assert.False(t, s.Can(rbac.PermProjectsWrite))
		assert.False(t, s.CanAny(rbac.PermProjectsDelete, rbac.PermAuditRead))
	})

	t.Run("switch recomputes permissions", func(t *testing.T) {
		_, err := s.SwitchOrganization(ctx, "org-b")
		require.NoError(t, err)
		assert.Equal(t, tenancy.RoleAdmin, s.Role())
		assert.True(t, s.Can(rbac.PermProjectsDelete))
		assert.True(t, s.CanAny(rbac.PermAuditRead))
		assert.False(t, s.Can("billing:read"))
	})

	t.Run("failed switch keeps previous organization", func(t *testing.T) {
		_, err := s.SwitchOrganization(ctx, "org-z")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))

		id, err := s.OrgID()
		require.NoError(t, err)
		assert.Equal(t, "org-b", id)
		assert.True(t, s.Can(rbac.PermProjectsDelete))
	})

	t.Run("checks are local", func(t *testing.T) {
		before := api.orgFetches.Load()
		for i := 0; i < 10; i++ {
			s.Can(rbac.PermMembersInvite)
		}
		assert.Equal(t, before, api.orgFetches.Load())

		require.NoError(t, s.Refresh(ctx))
		assert.Equal(t, before+1, api.orgFetches.Load())
	})

	t.Run("permissions copy", func(t *testing.T) {
		perms := s.Permissions()
		perms[0] = "*"
		assert.False(t, s.Can("billing:read"))
	})

	t.Run("clear", func(t *testing.T) {
		s.Clear()
		assert.False(t, s.Can(rbac.PermProjectsRead))
		assert.Equal(t, tenancy.Role(""), s.Role())
	})
}
