package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService() *TokenService {
	return NewTokenService("test-signing-key", "parceltrack-test", 15*time.Minute, 24*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestTokenService()

	raw, err := svc.CreateAccessToken(42, "driver")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "driver", claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
}

func TestRefreshTokenCarriesType(t *testing.T) {
	svc := newTestTokenService()

	raw, err := svc.CreateRefreshToken(42, "owner")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(raw)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	raw, err := newTestTokenService().CreateAccessToken(42, "owner")
	require.NoError(t, err)

	other := NewTokenService("different-key", "parceltrack-test", time.Minute, time.Minute)
	_, err = other.ValidateToken(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateTokenRejectsWrongIssuer(t *testing.T) {
	issuerA := NewTokenService("test-signing-key", "issuer-a", time.Minute, time.Minute)
	issuerB := NewTokenService("test-signing-key", "issuer-b", time.Minute, time.Minute)

	raw, err := issuerA.CreateAccessToken(42, "owner")
	require.NoError(t, err)

	_, err = issuerB.ValidateToken(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewTokenService("test-signing-key", "parceltrack-test", -time.Minute, -time.Minute)

	raw, err := svc.CreateAccessToken(42, "owner")
	require.NoError(t, err)

	_, err = svc.ValidateToken(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newTestTokenService()

	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.ValidateToken("")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
