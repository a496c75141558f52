package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/foundry/pkg/storage/postgres"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteDetailedError writes a detailed error response with additional context
func WriteDetailedError(w http.ResponseWriter, status int, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Details: details})
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// WriteInternalError writes a generic 500 without leaking err to the client
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// StorageErrorStatus maps an error returned from a scoped unit of work to an HTTP status
func StorageErrorStatus(err error) int {
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tenancy.ErrInvalidContext):
		// An unresolvable database context is a server bug, never a client error
		return http.StatusInternalServerError
	case postgres.IsInsufficientPrivilege(err):
		return http.StatusForbidden
	case postgres.IsUniqueViolation(err):
		return http.StatusConflict
	case postgres.IsForeignKeyViolation(err), postgres.IsCheckViolation(err):
		return http.StatusBadRequest
	case postgres.IsStatementTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteStorageError writes the response for a storage error
func WriteStorageError(w http.ResponseWriter, err error) {
	status := StorageErrorStatus(err)
	switch status {
	case http.StatusNotFound:
		WriteNotFound(w, "not found")
	case http.StatusForbidden:
		WriteForbidden(w, "insufficient permissions")
	case http.StatusConflict:
		WriteConflict(w, "already exists")
	case http.StatusBadRequest:
		WriteBadRequest(w, "invalid reference or value")
	case http.StatusGatewayTimeout:
		WriteErrorMessage(w, status, "request timeout")
	default:
		WriteInternalError(w)
	}
}
