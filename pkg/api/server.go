package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/foundry/pkg/audit"
	"github.com/platinummonkey/foundry/pkg/auth"
	"github.com/platinummonkey/foundry/pkg/httputil"
	"github.com/platinummonkey/foundry/pkg/middleware"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/orgs"
	"github.com/platinummonkey/foundry/pkg/projects"
	"github.com/platinummonkey/foundry/pkg/rbac"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// maxBodyBytes bounds every request body
const maxBodyBytes = 1 << 20

// OrgService manages organizations and their members
type OrgService interface {
	CreateOrganization(ctx context.Context, userID string, req orgs.CreateOrganizationRequest) (*orgs.Organization, error)
	ListOrganizations(ctx context.Context, userID string) ([]*orgs.Organization, error)
	GetOrganization(ctx context.Context, tc tenancy.TenantContext) (*orgs.Organization, error)
	UpdateOrganization(ctx context.Context, tc tenancy.TenantContext, req orgs.UpdateOrganizationRequest) (*orgs.Organization, error)
	ListMembers(ctx context.Context, tc tenancy.TenantContext) ([]*orgs.Member, error)
	AddMember(ctx context.Context, tc tenancy.TenantContext, req orgs.AddMemberRequest) (*orgs.Member, error)
	UpdateMemberRole(ctx context.Context, tc tenancy.TenantContext, userID string, req orgs.UpdateMemberRoleRequest) (*orgs.Member, error)
	RemoveMember(ctx context.Context, tc tenancy.TenantContext, userID string) error
}

// ProjectService manages the projects of an organization
type ProjectService interface {
	List(ctx context.Context, tc tenancy.TenantContext) ([]*projects.Project, error)
	Get(ctx context.Context, tc tenancy.TenantContext, id string) (*projects.Project, error)
	Create(ctx context.Context, tc tenancy.TenantContext, req projects.CreateRequest) (*projects.Project, error)
	Update(ctx context.Context, tc tenancy.TenantContext, id string, req projects.UpdateRequest) (*projects.Project, error)
	Delete(ctx context.Context, tc tenancy.TenantContext, id string) error
}

// TokenService validates and manages API tokens
type TokenService interface {
	middleware.TokenValidator
	CreateToken(ctx context.Context, userID, description string, expiresAt *time.Time) (*auth.APIToken, string, error)
	ListTokens(ctx context.Context, userID string) ([]*auth.APIToken, error)
	RevokeToken(ctx context.Context, userID, tokenID string) error
}

// Deps are the services the API is built on
type Deps struct {
	Orgs        OrgService
	Projects    ProjectService
	Tokens      TokenService
	Permissions middleware.PermissionResolver
	Policies    *rbac.PolicyStore
	AuditStore  audit.Store
	AuditLogger audit.Logger

	// Optional
	Health         *observability.HealthChecker
	Metrics        *observability.Metrics
	Registry       *prometheus.Registry
	Logger         *observability.Logger
	LogAllRequests bool
}

// Server is the HTTP API
type Server struct {
	router   *mux.Router
	orgs     OrgService
	projects ProjectService
	tokens   TokenService
	perms    *rbac.PermissionMiddleware
	logger   *observability.Logger
}

// NewServer creates the API server and its routes
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.AuditLogger == nil {
		deps.AuditLogger = audit.NopLogger()
	}
	if deps.Policies == nil {
		deps.Policies = rbac.NewPolicyStore(nil)
	}

	s := &Server{
		router:   mux.NewRouter(),
		orgs:     deps.Orgs,
		projects: deps.Projects,
		tokens:   deps.Tokens,
		perms:    rbac.NewPermissionMiddleware(deps.Policies, deps.Metrics),
		logger:   deps.Logger,
	}
	s.setupRoutes(deps)
	return s
}

// Handler returns the traced root handler
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "foundry-api")
}

// Router exposes the router for tests and extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes(deps Deps) {
	s.router.Use(
		middleware.RequestID(s.logger),
		observability.RecoveryMiddleware(s.logger),
	)
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	if deps.Health != nil {
		observability.RegisterHealthRoutes(s.router, deps.Health)
	}
	if deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(deps.Registry)).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(
		audit.NewMiddleware(deps.AuditLogger, s.logger, deps.LogAllRequests).Handler,
		middleware.NewAuthMiddleware(deps.Tokens, false).Handler,
		mux.MiddlewareFunc(httputil.Chain(httputil.MaxBytesMiddleware(maxBodyBytes), httputil.ContentTypeMiddleware)),
	)

	v1.HandleFunc("/organizations", s.listOrganizations).Methods(http.MethodGet)
	v1.HandleFunc("/organizations", s.createOrganization).Methods(http.MethodPost)
	v1.HandleFunc("/tokens", s.listTokens).Methods(http.MethodGet)
	v1.HandleFunc("/tokens", s.createToken).Methods(http.MethodPost)
	v1.HandleFunc("/tokens/{token_id}", s.revokeToken).Methods(http.MethodDelete)

	org := v1.PathPrefix("/orgs/{" + middleware.OrgIDVar + "}").Subrouter()
	org.Use(middleware.NewTenantMiddleware(deps.Permissions).Handler)

	org.Handle("", s.require(rbac.PermOrganizationRead, s.getOrganization)).Methods(http.MethodGet)
	org.Handle("", s.require(rbac.PermOrganizationUpdate, s.updateOrganization)).Methods(http.MethodPatch)

	org.Handle("/members", s.require(rbac.PermMembersRead, s.listMembers)).Methods(http.MethodGet)
	org.Handle("/members", s.require(rbac.PermMembersInvite, s.addMember)).Methods(http.MethodPost)
	org.Handle("/members/{user_id}", s.require(rbac.PermMembersUpdate, s.updateMember)).Methods(http.MethodPatch)
	org.Handle("/members/{user_id}", s.require(rbac.PermMembersRemove, s.removeMember)).Methods(http.MethodDelete)

	org.Handle("/projects", s.require(rbac.PermProjectsRead, s.listProjects)).Methods(http.MethodGet)
	org.Handle("/projects", s.require(rbac.PermProjectsWrite, s.createProject)).Methods(http.MethodPost)
	org.Handle("/projects/{project_id}", s.require(rbac.PermProjectsRead, s.getProject)).Methods(http.MethodGet)
	org.Handle("/projects/{project_id}", s.require(rbac.PermProjectsWrite, s.updateProject)).Methods(http.MethodPatch)
	org.Handle("/projects/{project_id}", s.require(rbac.PermProjectsDelete, s.deleteProject)).Methods(http.MethodDelete)

	if deps.AuditStore != nil {
		auditRoutes := org.NewRoute().Subrouter()
		auditRoutes.Use(s.perms.RequirePermission(rbac.PermAuditRead))
		audit.NewHandlers(deps.AuditStore).RegisterRoutes(auditRoutes)
	}
}

func (s *Server) require(permission string, h http.HandlerFunc) http.Handler {
	return s.perms.RequirePermission(permission)(h)
}
