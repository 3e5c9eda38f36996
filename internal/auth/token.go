package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid covers malformed, tampered, foreign and revoked tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for a well-signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrRevocationUnavailable is returned by Revoke without a denylist.
	ErrRevocationUnavailable = errors.New("token revocation unavailable")
)

// Identity is the verified content of a token.
type Identity struct {
	Subject   string
	TokenID   string
	ExpiresAt time.Time
}

// Denylist stores revoked token ids until they would have expired anyway.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TokenService issues and verifies HS256 signed identity tokens.
type TokenService struct {
	secret   []byte
	issuer   string
	denylist Denylist
	now      func() time.Time
}

type TokenOption func(*TokenService)

// WithIssuer sets the iss claim on issued tokens and requires it on verify.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		s.issuer = strings.TrimSpace(issuer)
	}
}

// WithDenylist enables revocation checks.
func WithDenylist(denylist Denylist) TokenOption {
	return func(s *TokenService) {
		s.denylist = denylist
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService constructs a TokenService. An empty secret is rejected.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token signing secret is required")
	}
	s := &TokenService{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue returns a signed token for subject that expires ttl from now.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject is required")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks the token signature, expiry and revocation state.
// Any returned error other than ErrTokenInvalid or ErrTokenExpired is an
// infrastructure failure.
func (s *TokenService) Verify(ctx context.Context, tokenString string) (Identity, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.issuer))
	}

	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return Identity{}, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	identity := Identity{
		Subject: claims.Subject,
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}

	if s.denylist != nil && identity.TokenID != "" {
		revoked, err := s.denylist.IsRevoked(ctx, identity.TokenID)
		if err != nil {
			return Identity{}, fmt.Errorf("check token revocation: %w", err)
		}
		if revoked {
			return Identity{}, fmt.Errorf("%w: revoked", ErrTokenInvalid)
		}
	}

	return identity, nil
}

// CanRevoke reports whether a denylist is configured.
func (s *TokenService) CanRevoke() bool {
	return s.denylist != nil
}

// Revoke denies the token behind identity for the rest of its lifetime.
func (s *TokenService) Revoke(ctx context.Context, identity Identity) error {
	if s.denylist == nil {
		return ErrRevocationUnavailable
	}
	if identity.TokenID == "" {
		return fmt.Errorf("%w: missing token id", ErrTokenInvalid)
	}
	return s.denylist.Revoke(ctx, identity.TokenID, identity.ExpiresAt)
}
