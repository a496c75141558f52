package tenancy

import "strings"

// Kind identifies the variant of a DatabaseContext
type Kind int

const (
	KindInvalid Kind = iota
	KindTenant
	KindService
)

// String returns the kind label used in logs, metrics and audit events
func (k Kind) String() string {
	switch k {
	case KindTenant:
		return "tenant"
	case KindService:
		return "service"
	default:
		return "invalid"
	}
}

// IsServiceContext reports whether c is a service context with BypassRLS set
func IsServiceContext(c DatabaseContext) bool {
	sc, ok := asService(c)
	return ok && sc.BypassRLS
}

// IsTenantContext reports whether c is a tenant context with all three fields present
func IsTenantContext(c DatabaseContext) bool {
	tc, ok := asTenant(c)
	return ok && tc.OrgID != "" && tc.UserID != "" && tc.Role.Valid()
}

// Resolve classifies c. It never defaults: a value matching neither variant
// returns ErrInvalidContext, and a service context without a reason returns
// ErrMissingReason.
func Resolve(c DatabaseContext) (Kind, error) {
	switch {
	case IsTenantContext(c):
		return KindTenant, nil
	case IsServiceContext(c):
		sc, _ := asService(c)
		if strings.TrimSpace(sc.Reason) == "" {
			return KindInvalid, ErrMissingReason
		}
		return KindService, nil
	default:
		return KindInvalid, ErrInvalidContext
	}
}

// AsTenant returns the tenant context held by c
func AsTenant(c DatabaseContext) (TenantContext, bool) {
	if !IsTenantContext(c) {
		return TenantContext{}, false
	}
	return asTenant(c)
}

// AsService returns the service context held by c
func AsService(c DatabaseContext) (ServiceContext, bool) {
	if !IsServiceContext(c) {
		return ServiceContext{}, false
	}
	return asService(c)
}

func asTenant(c DatabaseContext) (TenantContext, bool) {
	switch v := c.(type) {
	case TenantContext:
		return v, true
	case *TenantContext:
		if v != nil {
			return *v, true
		}
	}
	return TenantContext{}, false
}

func asService(c DatabaseContext) (ServiceContext, bool) {
	switch v := c.(type) {
	case ServiceContext:
		return v, true
	case *ServiceContext:
		if v != nil {
			return *v, true
		}
	}
	return ServiceContext{}, false
}
