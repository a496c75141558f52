package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, tokenHash, tokenPrefix, err := tg.GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Len(t, tokenHash, 64)
	assert.Equal(t, tg.HashToken(token), tokenHash)
	assert.Len(t, tokenPrefix, len(TokenPrefix)+8)
	assert.True(t, strings.HasPrefix(token, tokenPrefix))
	assert.NoError(t, tg.ValidateTokenFormat(token))
}

func TestTokenGenerator_Uniqueness(t *testing.T) {
	tg := NewTokenGenerator()
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		token, tokenHash, _, err := tg.GenerateToken()
		require.NoError(t, err)
		assert.False(t, seen[token], "duplicate token")
		assert.False(t, seen[tokenHash], "duplicate hash")
		seen[token] = true
		seen[tokenHash] = true
	}
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()
	valid, _, _, err := tg.GenerateToken()
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", valid, false},
		{"wrong prefix", "ghp_" + strings.TrimPrefix(valid, TokenPrefix), true},
		{"prefix only", TokenPrefix, true},
		{"bad encoding", TokenPrefix + "!!!!", true},
		{"too short", TokenPrefix + "YWJj", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tg.ValidateTokenFormat(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokenGenerator_ExtractPrefix(t *testing.T) {
	tg := NewTokenGenerator()

	assert.Equal(t, "fdy_abcdefgh", tg.ExtractPrefix("fdy_abcdefghijkl"))
	assert.Equal(t, "fdy_abc", tg.ExtractPrefix("fdy_abc"))
	assert.Empty(t, tg.ExtractPrefix("ghp_abcdefghijkl"))
}
