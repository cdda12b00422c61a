package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInviteCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := newInviteCode()
		require.NoError(t, err)
		assert.Len(t, code, 8)
		for _, ch := range code {
			assert.True(t, strings.ContainsRune(inviteAlphabet, ch), "unexpected char %q", ch)
		}
		seen[code] = true
	}
	// collisions over 100 draws from a 32^8 space would indicate broken randomness
	assert.Greater(t, len(seen), 95)
}

func TestSignAndParseToken(t *testing.T) {
	svc := NewService(nil, "invest-platform", []byte("test-secret"), time.Hour)
	token, err := svc.signToken("user-123")
	require.NoError(t, err)

	userID, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	svc := NewService(nil, "invest-platform", []byte("secret-a"), time.Hour)
	token, err := svc.signToken("user-123")
	require.NoError(t, err)

	other := NewService(nil, "invest-platform", []byte("secret-b"), time.Hour)
	_, err = other.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsWrongIssuer(t *testing.T) {
	svc := NewService(nil, "issuer-a", []byte("test-secret"), time.Hour)
	token, err := svc.signToken("user-123")
	require.NoError(t, err)

	other := NewService(nil, "issuer-b", []byte("test-secret"), time.Hour)
	_, err = other.ParseToken(token)
	assert.Error(t, err)
}
