package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/orthodesk/orthodesk/authz"
)

const defaultTokenTTL = 12 * time.Hour

// TokenClaims is the payload of an orthodesk access token
type TokenClaims struct {
	TenantID string `json:"tid"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTService issues and verifies HS256 access tokens.
// It implements authz.CredentialVerifier.
type JWTService struct {
	secret   []byte
	ttl      time.Duration
	denylist TokenDenylist
	now      func() time.Time
}

var _ authz.CredentialVerifier = (*JWTService)(nil)

// NewJWTService creates a JWTService. denylist may be nil when logout is not supported.
func NewJWTService(secret string, ttl time.Duration, denylist TokenDenylist) *JWTService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &JWTService{
		secret:   []byte(secret),
		ttl:      ttl,
		denylist: denylist,
		now:      time.Now,
	}
}

// IssueToken signs a token for userID in tenantID
func (s *JWTService) IssueToken(userID, tenantID, email string) (string, *TokenClaims, error) {
	if len(s.secret) == 0 {
		return "", nil, errors.New("jwt secret is not configured")
	}
	now := s.now()
	claims := &TokenClaims{
		TenantID: tenantID,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse validates signature, algorithm and expiry and returns the token claims
func (s *JWTService) Parse(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Verify implements authz.CredentialVerifier. Revoked tokens are rejected.
func (s *JWTService) Verify(ctx context.Context, tokenString string) (authz.Claims, error) {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return authz.Claims{}, err
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return authz.Claims{}, errors.New("token is missing subject or tenant")
	}

	if s.denylist != nil && claims.ID != "" {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return authz.Claims{}, fmt.Errorf("failed to check token revocation: %w", err)
		}
		if revoked {
			return authz.Claims{}, errors.New("token has been revoked")
		}
	}

	return authz.Claims{
		UserID:   claims.Subject,
		TenantID: claims.TenantID,
		TokenID:  claims.ID,
	}, nil
}

// Revoke puts the token's jti on the denylist until the token would have expired anyway
func (s *JWTService) Revoke(ctx context.Context, tokenString string) error {
	if s.denylist == nil {
		return errors.New("token revocation is not configured")
	}
	claims, err := s.Parse(tokenString)
	if err != nil {
		return fmt.Errorf("%w: %v", authz.ErrUnauthenticated, err)
	}
	return s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
