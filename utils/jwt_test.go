package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/taskquest/config"
)

func useJWTConfig(t *testing.T, issuer, audience string) {
	t.Helper()
	config.Override(config.AppConfig{JWTSecret: "jwt-secret", JWTIssuer: issuer, JWTAudience: audience})
}

func TestIssueAndParseToken(t *testing.T) {
	useJWTConfig(t, "accounts", "taskquest")

	token, err := IssueToken(5, "mia", time.Hour, "Admin")
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(5), claims.UserID)
	assert.Equal(t, "mia", claims.Username)
	assert.True(t, claims.HasRole(RoleAdmin))
	assert.False(t, claims.HasRole("parent"))
}

func TestParseTokenChecksIssuerAndAudience(t *testing.T) {
	useJWTConfig(t, "accounts", "taskquest")
	token, err := IssueToken(5, "mia", time.Hour)
	require.NoError(t, err)

	useJWTConfig(t, "accounts", "billing")
	_, err = ParseToken(token)
	assert.Error(t, err)

	useJWTConfig(t, "someone-else", "taskquest")
	_, err = ParseToken(token)
	assert.Error(t, err)

	useJWTConfig(t, "", "")
	_, err = ParseToken(token)
	assert.NoError(t, err)
}

func TestParseTokenRejects(t *testing.T) {
	useJWTConfig(t, "", "")

	expired, err := IssueToken(5, "mia", -time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.Error(t, err)

	anonymous, err := IssueToken(0, "ghost", time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(anonymous)
	assert.ErrorIs(t, err, errMissingUser)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 5}).SignedString([]byte("jwt-secret"))
	require.NoError(t, err)
	_, err = ParseToken(noExpiry)
	assert.Error(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID:           5,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(unsigned)
	assert.Error(t, err)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           5,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = ParseToken(forged)
	assert.Error(t, err)
}
