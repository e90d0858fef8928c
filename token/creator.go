package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenRequest describes the token to mint.
type AccessTokenRequest struct {
	Subject       string
	ClientID      string
	Scope         string
	CodeChallenge string
}

// IssuedToken is a freshly signed access token.
type IssuedToken struct {
	Raw       string
	Claims    *AccessTokenClaims
	ExpiresAt time.Time
}

// Creator mints signed access tokens for a single issuer and audience.
type Creator struct {
	signer   Signer
	issuer   string
	audience string
	expiry   time.Duration
	nowFunc  func() time.Time
}

type CreatorOption func(*Creator)

// WithCreatorNowFunc overrides the clock used for iat and exp.
func WithCreatorNowFunc(nowFunc func() time.Time) CreatorOption {
	return func(c *Creator) {
		c.nowFunc = nowFunc
	}
}

// NewCreator creates a new access token creator
func NewCreator(signer Signer, issuer, audience string, expiry time.Duration, opts ...CreatorOption) *Creator {
	c := &Creator{
		signer:   signer,
		issuer:   issuer,
		audience: audience,
		expiry:   expiry,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateAccessToken signs a token for req.Subject carrying req.Scope.
func (c *Creator) CreateAccessToken(req AccessTokenRequest) (*IssuedToken, error) {
	if req.Subject == "" {
		return nil, fmt.Errorf("[Creator CreateAccessToken] subject is required")
	}

	now := c.nowFunc().Truncate(time.Second)
	expiresAt := now.Add(c.expiry)
	claims := &AccessTokenClaims{
		Scope:         req.Scope,
		ClientID:      req.ClientID,
		CodeChallenge: req.CodeChallenge,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   req.Subject,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("[Creator CreateAccessToken] failed to sign JWT token: %w", err)
	}

	return &IssuedToken{
		Raw:       signed,
		Claims:    claims,
		ExpiresAt: expiresAt,
	}, nil
}
