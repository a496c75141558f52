package api

import (
	"net/http"

	"github.com/platinummonkey/foundry/pkg/auth"
	"github.com/platinummonkey/foundry/pkg/httputil"
	"github.com/platinummonkey/foundry/pkg/orgs"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// listOrganizations handles GET /v1/organizations
func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	list, err := s.orgs.ListOrganizations(r.Context(), principal.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"organizations": list})
}

// createOrganization handles POST /v1/organizations
func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	var req orgs.CreateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := s.orgs.CreateOrganization(r.Context(), principal.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, org)
}

// getOrganization handles GET /v1/orgs/{org_id}
func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	org, err := s.orgs.GetOrganization(r.Context(), tc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// updateOrganization handles PATCH /v1/orgs/{org_id}
func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	var req orgs.UpdateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := s.orgs.UpdateOrganization(r.Context(), tc, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// listMembers handles GET /v1/orgs/{org_id}/members
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	members, err := s.orgs.ListMembers(r.Context(), tc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

// addMember handles POST /v1/orgs/{org_id}/members
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	var req orgs.AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	member, err := s.orgs.AddMember(r.Context(), tc, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, member)
}

// updateMember handles PATCH /v1/orgs/{org_id}/members/{user_id}
func (s *Server) updateMember(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}

	var req orgs.UpdateMemberRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	member, err := s.orgs.UpdateMemberRole(r.Context(), tc, userID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}

// removeMember handles DELETE /v1/orgs/{org_id}/members/{user_id}
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := s.orgs.RemoveMember(r.Context(), tc, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func principalOrError(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
	}
	return principal, ok
}

func tenantOrError(w http.ResponseWriter, r *http.Request) (tenancy.TenantContext, bool) {
	tc, err := tenancy.TenantContextFrom(r.Context())
	if err != nil {
		httputil.WriteUnauthorized(w, "organization context required")
		return tenancy.TenantContext{}, false
	}
	return tc, true
}
