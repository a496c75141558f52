package tenancy

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidContext is returned for a value that is neither a valid tenant context nor a
	// valid service context.
	ErrInvalidContext = errors.New("tenancy: invalid database context")

	// ErrMissingReason is returned for a service context without an audit reason.
	ErrMissingReason = fmt.Errorf("%w: service context requires a non-empty reason", ErrInvalidContext)

	// ErrNoTenantContext is returned when a request context carries no tenant context.
	ErrNoTenantContext = errors.New("tenancy: no tenant context in request")

	// ErrNotMember is returned when a user holds no role in the requested organization.
	ErrNotMember = errors.New("tenancy: user is not a member of the organization")

	// ErrInvalidRole is returned when parsing an unknown role name.
	ErrInvalidRole = errors.New("tenancy: invalid role")
)
