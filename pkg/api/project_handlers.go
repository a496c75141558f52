package api

import (
	"net/http"

	"github.com/platinummonkey/foundry/pkg/httputil"
	"github.com/platinummonkey/foundry/pkg/projects"
)

// listProjects handles GET /v1/orgs/{org_id}/projects
func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	list, err := s.projects.List(r.Context(), tc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"projects": list})
}

// createProject handles POST /v1/orgs/{org_id}/projects
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	var req projects.CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	project, err := s.projects.Create(r.Context(), tc, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, project)
}

// getProject handles GET /v1/orgs/{org_id}/projects/{project_id}
func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "project_id")
	if !ok {
		return
	}

	project, err := s.projects.Get(r.Context(), tc, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

// updateProject handles PATCH /v1/orgs/{org_id}/projects/{project_id}
func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "project_id")
	if !ok {
		return
	}

	var req projects.UpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	project, err := s.projects.Update(r.Context(), tc, id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

// deleteProject handles DELETE /v1/orgs/{org_id}/projects/{project_id}
func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "project_id")
	if !ok {
		return
	}

	if err := s.projects.Delete(r.Context(), tc, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
