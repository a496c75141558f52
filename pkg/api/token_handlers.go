package api

import (
	"net/http"
	"time"

	"github.com/platinummonkey/foundry/pkg/auth"
	"github.com/platinummonkey/foundry/pkg/httputil"
)

// CreateTokenRequest is the body of POST /v1/tokens
type CreateTokenRequest struct {
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// CreateTokenResponse carries the plaintext token, shown only once
type CreateTokenResponse struct {
	*auth.APIToken
	Token string `json:"token"`
}

// listTokens handles GET /v1/tokens
func (s *Server) listTokens(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	tokens, err := s.tokens.ListTokens(r.Context(), principal.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"tokens": tokens})
}

// createToken handles POST /v1/tokens
func (s *Server) createToken(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	var req CreateTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		httputil.WriteBadRequest(w, "expires_at must be in the future")
		return
	}

	record, token, err := s.tokens.CreateToken(r.Context(), principal.UserID, req.Description, req.ExpiresAt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, CreateTokenResponse{APIToken: record, Token: token})
}

// revokeToken handles DELETE /v1/tokens/{token_id}
func (s *Server) revokeToken(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	tokenID, ok := httputil.ParsePathUUIDOrError(w, r, "token_id")
	if !ok {
		return
	}

	if err := s.tokens.RevokeToken(r.Context(), principal.UserID, tokenID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
