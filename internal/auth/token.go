// Package auth issues and validates the platform's JWT bearer tokens and
// resolves them into authorization subjects.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token validation errors.
var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type parcelClaims struct {
	jwt.RegisteredClaims
	UserID    int64  `json:"uid"`
	Role      string `json:"role"`
	TokenType string `json:"type"`
}

// TokenClaims is the decoded identity carried by a validated token. The
// guard never trusts the role claim alone; the middleware reloads the user
// record so that status and permission changes take effect immediately.
type TokenClaims struct {
	UserID    int64
	Role      string
	TokenType string
}

// TokenService handles JWT creation and validation (HS256).
type TokenService struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService constructs a TokenService.
func NewTokenService(signingKey, issuer string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// CreateAccessToken issues a short-lived access token.
func (s *TokenService) CreateAccessToken(userID int64, role string) (string, error) {
	return s.createToken(userID, role, TokenTypeAccess, s.accessTTL)
}

// CreateRefreshToken issues a refresh token.
func (s *TokenService) CreateRefreshToken(userID int64, role string) (string, error) {
	return s.createToken(userID, role, TokenTypeRefresh, s.refreshTTL)
}

func (s *TokenService) createToken(userID int64, role, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := parcelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:    userID,
		Role:      role,
		TokenType: tokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

// ValidateToken parses and verifies a token string.
func (s *TokenService) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &parcelClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*parcelClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return &TokenClaims{
		UserID:    claims.UserID,
		Role:      claims.Role,
		TokenType: claims.TokenType,
	}, nil
}
