package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/foundry/pkg/audit"
	"github.com/platinummonkey/foundry/pkg/observability"
	"github.com/platinummonkey/foundry/pkg/storage/postgres"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// revokedRetention is how long revoked tokens are kept before cleanup
const revokedRetention = 30 * 24 * time.Hour

// TokenStore persists users and API tokens.
//
// users and api_tokens are identity tables without an organization, read
// before any tenant context exists, so request paths use the pool directly.
// Bulk cleanup runs in a unit of work under the worker's service context.
type TokenStore struct {
	db        *sql.DB
	scoper    *postgres.Scoper
	generator *TokenGenerator
	logger    *observability.Logger
	now       func() time.Time
}

// NewTokenStore creates a token store
func NewTokenStore(db *sql.DB, scoper *postgres.Scoper, logger *observability.Logger) *TokenStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &TokenStore{
		db:        db,
		scoper:    scoper,
		generator: NewTokenGenerator(),
		logger:    logger.WithField("component", "tokens"),
		now:       time.Now,
	}
}

// CreateUser creates a user account
func (s *TokenStore) CreateUser(ctx context.Context, email, displayName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email address: %q", email)
	}

	user := &User{ID: uuid.NewString(), Email: email, DisplayName: strings.TrimSpace(displayName)}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		user.ID, user.Email, user.DisplayName,
	).Scan(&user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// CreateToken issues a token for userID and returns it with its stored record.
// The plaintext token cannot be recovered later.
func (s *TokenStore) CreateToken(ctx context.Context, userID, description string, expiresAt *time.Time) (*APIToken, string, error) {
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, "", fmt.Errorf("expiry must be in the future")
	}

	token, tokenHash, tokenPrefix, err := s.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	record := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Description: description,
		ExpiresAt:   expiresAt,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, description, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		userID, tokenHash, tokenPrefix, description, expiresAt,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	s.audit(ctx, audit.EventTypeAuthTokenCreate, userID, record.ID, "API token created")
	return record, token, nil
}

// ValidateToken resolves a bearer token to its principal
func (s *TokenStore) ValidateToken(ctx context.Context, token string) (*Principal, error) {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrInvalidToken
	}

	var (
		record    APIToken
		email     string
		expiresAt sql.NullTime
		revokedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, u.email, t.expires_at, t.revoked_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1`,
		s.generator.HashToken(token),
	).Scan(&record.ID, &record.UserID, &email, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if revokedAt.Valid {
		return nil, ErrTokenRevoked
	}
	if expiresAt.Valid {
		record.ExpiresAt = &expiresAt.Time
	}
	if record.Expired(s.now()) {
		return nil, ErrTokenExpired
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = NOW() WHERE id = $1`, record.ID); err != nil {
		s.logger.WithError(err).WithField("token_id", record.ID).Warn("Failed to record token use")
	}

	return &Principal{UserID: record.UserID, Email: email, TokenID: record.ID}, nil
}

// ListTokens returns the tokens of userID, newest first
func (s *TokenStore) ListTokens(ctx context.Context, userID string) ([]*APIToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, token_prefix, description, expires_at, last_used_at, revoked_at, created_at
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*APIToken, 0)
	for rows.Next() {
		t := &APIToken{}
		var expiresAt, lastUsedAt, revokedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenPrefix, &t.Description, &expiresAt, &lastUsedAt, &revokedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		t.ExpiresAt = nullTimePtr(expiresAt)
		t.LastUsedAt = nullTimePtr(lastUsedAt)
		t.RevokedAt = nullTimePtr(revokedAt)
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// RevokeToken revokes one of userID's tokens
func (s *TokenStore) RevokeToken(ctx context.Context, userID, tokenID string) error {
	if _, err := uuid.Parse(tokenID); err != nil {
		return ErrTokenNotFound
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE api_tokens SET revoked_at = NOW()
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		tokenID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}

	s.audit(ctx, audit.EventTypeAuthTokenRevoke, userID, tokenID, "API token revoked")
	return nil
}

// CleanupExpiredTokens deletes expired tokens and tokens revoked more than
// 30 days ago. It runs under the caller's service context.
func (s *TokenStore) CleanupExpiredTokens(ctx context.Context, sc tenancy.ServiceContext) (int64, error) {
	cutoff := s.now().Add(-revokedRetention)
	return postgres.WithResult(ctx, s.scoper, sc, func(ctx context.Context, q postgres.Querier) (int64, error) {
		res, err := q.ExecContext(ctx, `
			DELETE FROM api_tokens
			WHERE expires_at < $1 OR revoked_at < $2`,
			s.now(), cutoff)
		if err != nil {
			return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
		}
		return res.RowsAffected()
	})
}

func (s *TokenStore) audit(ctx context.Context, eventType audit.EventType, userID, tokenID, message string) {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess)
	event.UserID = userID
	event.ResourceType = audit.ResourceTypeToken
	event.ResourceID = tokenID
	event.Message = message
	if err := audit.FromContext(ctx).Log(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", string(eventType)).Error("Failed to write audit event")
	}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
