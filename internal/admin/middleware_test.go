package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := signToken(secret, "invest-platform", "ops", "super", time.Hour)
	require.NoError(t, err)

	username, role, err := parseToken(secret, "invest-platform", token)
	require.NoError(t, err)
	assert.Equal(t, "ops", username)
	assert.Equal(t, "super", role)
}

func TestAdminTokenRejectsWrongSecret(t *testing.T) {
	token, err := signToken([]byte("secret-a"), "invest-platform", "ops", "super", time.Hour)
	require.NoError(t, err)
	_, _, err = parseToken([]byte("secret-b"), "invest-platform", token)
	assert.Error(t, err)
}

func TestAdminTokenRejectsWrongIssuer(t *testing.T) {
	secret := []byte("test-secret")
	token, err := signToken(secret, "issuer-a", "ops", "super", time.Hour)
	require.NoError(t, err)
	_, _, err = parseToken(secret, "issuer-b", token)
	assert.Error(t, err)
}

func TestAdminTokenRejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := signToken(secret, "invest-platform", "ops", "super", -time.Minute)
	require.NoError(t, err)
	_, _, err = parseToken(secret, "invest-platform", token)
	assert.Error(t, err)
}
