package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a row does not exist or is not visible
// under the active database context
var ErrNotFound = errors.New("not found")

// PostgreSQL error codes surfaced to callers
const (
	codeInsufficientPrivilege = "42501"
	codeUniqueViolation       = "23505"
	codeForeignKeyViolation   = "23503"
	codeCheckViolation        = "23514"
	codeQueryCanceled         = "57014"
)

func hasCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}

// IsInsufficientPrivilege reports a row-level security or grant violation
func IsInsufficientPrivilege(err error) bool {
	return hasCode(err, codeInsufficientPrivilege)
}

// IsUniqueViolation reports a unique constraint violation
func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsForeignKeyViolation reports a reference to a missing row
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, codeForeignKeyViolation)
}

// IsCheckViolation reports a check constraint violation
func IsCheckViolation(err error) bool {
	return hasCode(err, codeCheckViolation)
}

// IsStatementTimeout reports a statement cancelled by statement_timeout
func IsStatementTimeout(err error) bool {
	return hasCode(err, codeQueryCanceled)
}
