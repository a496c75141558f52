package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/foundry/pkg/auth"
	"github.com/platinummonkey/foundry/pkg/orgs"
	"github.com/platinummonkey/foundry/pkg/projects"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// Client is a Foundry API client authenticated with a bearer token
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

// NewClient creates a new API client
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Token: token,
	}
}

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Message    string
	Details    map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API. Organizations the
// caller does not belong to are reported as not found.
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsForbidden reports whether err is a 403 from the API
func IsForbidden(err error) bool {
	return statusOf(err) == http.StatusForbidden
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func (c *Client) do(ctx context.Context, method, path string, body, target interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp struct {
			Error   string            `json:"error"`
			Details map[string]string `json:"details"`
		}
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
			apiErr.Details = errResp.Details
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func orgPath(orgID string, parts ...string) string {
	p := "/v1/orgs/" + url.PathEscape(orgID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// ListOrganizations lists the organizations the caller belongs to
func (c *Client) ListOrganizations(ctx context.Context) ([]*orgs.Organization, error) {
	var resp struct {
		Organizations []*orgs.Organization `json:"organizations"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/organizations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Organizations, nil
}

// CreateOrganization creates an organization owned by the caller
func (c *Client) CreateOrganization(ctx context.Context, req orgs.CreateOrganizationRequest) (*orgs.Organization, error) {
	var org orgs.Organization
	if err := c.do(ctx, http.MethodPost, "/v1/organizations", req, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// GetOrganization returns the organization with the caller's role and permissions in it
func (c *Client) GetOrganization(ctx context.Context, orgID string) (*orgs.Organization, error) {
	var org orgs.Organization
	if err := c.do(ctx, http.MethodGet, orgPath(orgID), nil, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// UpdateOrganization renames an organization
func (c *Client) UpdateOrganization(ctx context.Context, orgID string, req orgs.UpdateOrganizationRequest) (*orgs.Organization, error) {
	var org orgs.Organization
	if err := c.do(ctx, http.MethodPatch, orgPath(orgID), req, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// ListMembers lists the members of an organization
func (c *Client) ListMembers(ctx context.Context, orgID string) ([]*orgs.Member, error) {
	var resp struct {
		Members []*orgs.Member `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, orgPath(orgID, "members"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// AddMember adds a user to an organization
func (c *Client) AddMember(ctx context.Context, orgID, userID string, role tenancy.Role) (*orgs.Member, error) {
	var member orgs.Member
	req := orgs.AddMemberRequest{UserID: userID, Role: role}
	if err := c.do(ctx, http.MethodPost, orgPath(orgID, "members"), req, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateMemberRole changes a member's role
func (c *Client) UpdateMemberRole(ctx context.Context, orgID, userID string, role tenancy.Role) (*orgs.Member, error) {
	var member orgs.Member
	req := orgs.UpdateMemberRoleRequest{Role: role}
	if err := c.do(ctx, http.MethodPatch, orgPath(orgID, "members", userID), req, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// RemoveMember removes a user from an organization
func (c *Client) RemoveMember(ctx context.Context, orgID, userID string) error {
	return c.do(ctx, http.MethodDelete, orgPath(orgID, "members", userID), nil, nil)
}

// ListProjects lists the projects of an organization
func (c *Client) ListProjects(ctx context.Context, orgID string) ([]*projects.Project, error) {
	var resp struct {
		Projects []*projects.Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, orgPath(orgID, "projects"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// CreateProject creates a project
func (c *Client) CreateProject(ctx context.Context, orgID string, req projects.CreateRequest) (*projects.Project, error) {
	var project projects.Project
	if err := c.do(ctx, http.MethodPost, orgPath(orgID, "projects"), req, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// GetProject returns a single project
func (c *Client) GetProject(ctx context.Context, orgID, projectID string) (*projects.Project, error) {
	var project projects.Project
	if err := c.do(ctx, http.MethodGet, orgPath(orgID, "projects", projectID), nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// UpdateProject applies a partial update to a project
func (c *Client) UpdateProject(ctx context.Context, orgID, projectID string, req projects.UpdateRequest) (*projects.Project, error) {
	var project projects.Project
	if err := c.do(ctx, http.MethodPatch, orgPath(orgID, "projects", projectID), req, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// DeleteProject deletes a project
func (c *Client) DeleteProject(ctx context.Context, orgID, projectID string) error {
	return c.do(ctx, http.MethodDelete, orgPath(orgID, "projects", projectID), nil, nil)
}

// CreatedToken is a newly issued API token. Token is only ever returned once.
type CreatedToken struct {
	auth.APIToken
	Token string `json:"token"`
}

// CreateToken issues a new API token for the caller
func (c *Client) CreateToken(ctx context.Context, description string, expiresAt *time.Time) (*CreatedToken, error) {
	req := struct {
		Description string     `json:"description"`
		ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	}{description, expiresAt}

	var token CreatedToken
	if err := c.do(ctx, http.MethodPost, "/v1/tokens", req, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// ListTokens lists the caller's API tokens
func (c *Client) ListTokens(ctx context.Context) ([]*auth.APIToken, error) {
	var resp struct {
		Tokens []*auth.APIToken `json:"tokens"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/tokens", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

// RevokeToken revokes one of the caller's API tokens
func (c *Client) RevokeToken(ctx context.Context, tokenID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/tokens/"+url.PathEscape(tokenID), nil, nil)
}
