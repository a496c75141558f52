package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/foundry/pkg/auth"
	"github.com/platinummonkey/foundry/pkg/httputil"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/orgs"
	"github.com/platinummonkey/foundry/pkg/projects"
)

// writeServiceError maps a service error to its response. Domain errors carry
// their own message; storage errors go through httputil.WriteStorageError,
// which never exposes the underlying cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var orgValidation *orgs.ValidationError
	var projectValidation *projects.ValidationError

	switch {
	case errors.As(err, &orgValidation):
		httputil.WriteDetailedError(w, http.StatusBadRequest, "invalid request",
			map[string]string{orgValidation.Field: orgValidation.Message})
	case errors.As(err, &projectValidation):
		httputil.WriteDetailedError(w, http.StatusBadRequest, "invalid request",
			map[string]string{projectValidation.Field: projectValidation.Message})
	case errors.Is(err, orgs.ErrLastOwner):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, orgs.ErrOwnerRequired):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, auth.ErrTokenNotFound):
		httputil.WriteNotFound(w, "not found")
	default:
		status := httputil.StorageErrorStatus(err)
		if status >= http.StatusInternalServerError {
			observability.FromContext(r.Context()).
				WithError(err).
				WithField("path", r.URL.Path).
				Error("Request failed")
		}
		httputil.WriteStorageError(w, err)
	}
}
