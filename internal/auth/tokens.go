package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token errors.
var (
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrAccessTokenExpired  = errors.New("access token has expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token has expired")
)

// refreshTokenBytes is the entropy of an opaque refresh token.
const refreshTokenBytes = 32

// TokenPolicy sets how long issued tokens live.
type TokenPolicy struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// DefaultTokenPolicy is one hour of API access per sign-in, renewable for
// thirty days.
func DefaultTokenPolicy() TokenPolicy {
	return TokenPolicy{
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
	}
}

// RefreshToken is a stored refresh token. Each use revokes it and a new
// pair is issued.
type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// TokenIssuerConfig holds configuration for the token issuer.
type TokenIssuerConfig struct {
	SigningKey string
	Issuer     string
	Audience   string

	// Policy defaults to DefaultTokenPolicy. Zero durations take the default.
	Policy TokenPolicy

	Now func() time.Time
}

// TokenIssuer mints and verifies API credentials. Access tokens are HS256
// JWTs whose subject is the user ID. Refresh tokens are opaque and only
// meaningful to the refresh token repository.
type TokenIssuer struct {
	key      []byte
	issuer   string
	audience string
	policy   TokenPolicy
	now      func() time.Time
	parser   *jwt.Parser
}

// NewTokenIssuer creates a new token issuer.
func NewTokenIssuer(cfg TokenIssuerConfig) *TokenIssuer {
	policy := DefaultTokenPolicy()
	if cfg.Policy.AccessTTL > 0 {
		policy.AccessTTL = cfg.Policy.AccessTTL
	}
	if cfg.Policy.RefreshTTL > 0 {
		policy.RefreshTTL = cfg.Policy.RefreshTTL
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenIssuer{
		key:      []byte(cfg.SigningKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		policy:   policy,
		now:      now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		),
	}
}

// Policy returns the lifetimes in effect.
func (t *TokenIssuer) Policy() TokenPolicy {
	return t.policy
}

// AccessToken signs an access token for userID and returns it with its expiry.
func (t *TokenIssuer) AccessToken(userID string) (string, time.Time, error) {
	issuedAt := t.now()
	expiresAt := issuedAt.Add(t.policy.AccessTTL)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    t.issuer,
		Audience:  jwt.ClaimStrings{t.audience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks an access token and returns the user ID it was issued to.
func (t *TokenIssuer) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, err := t.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrAccessTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidAccessToken)
	}
	return claims.Subject, nil
}

// RefreshToken mints a refresh token for userID, valid for the policy's
// refresh lifetime.
func (t *TokenIssuer) RefreshToken(userID string) (*RefreshToken, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}

	now := t.now()
	return &RefreshToken{
		ID:        uuid.NewString(),
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		UserID:    userID,
		ExpiresAt: now.Add(t.policy.RefreshTTL),
		CreatedAt: now,
	}, nil
}
