package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	token, expiresAt, err := GenerateToken(42, "gopher")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "gopher", claims.Username)
	assert.NotEmpty(t, claims.ID)

	other, _, err := GenerateToken(42, "gopher")
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestParseTokenRejects(t *testing.T) {
	sign := func(claims Claims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	cases := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": sign(Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}, "other"),
		"expired":      sign(Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: past}}, "utils-test-secret"),
		"no expiry":    sign(Claims{UserID: 1}, "utils-test-secret"),
		"no user":      sign(Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}, "utils-test-secret"),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(token)
			assert.Error(t, err)
		})
	}
}
