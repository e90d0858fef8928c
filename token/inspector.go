package token

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
)

// Inspector verifies access tokens minted by a Creator sharing the same signer.
type Inspector struct {
	signer   Signer
	issuer   string
	audience string
	nowFunc  func() time.Time
	parser   *jwt.Parser
}

type InspectorOption func(*Inspector)

// WithInspectorNowFunc overrides the clock used for the expiry check.
func WithInspectorNowFunc(nowFunc func() time.Time) InspectorOption {
	return func(i *Inspector) {
		i.nowFunc = nowFunc
	}
}

// NewInspector creates an inspector accepting tokens for issuer and audience.
func NewInspector(signer Signer, issuer, audience string, opts ...InspectorOption) *Inspector {
	i := &Inspector{
		signer:   signer,
		issuer:   issuer,
		audience: audience,
		nowFunc:  time.Now,
		// Claims are checked by validateClaims so expiry is classified after
		// signature, issuer and audience.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signer.GetSigningMethod().Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect parses and verifies raw. Errors wrap apperrors.ErrInvalidToken for
// tokens that are malformed, badly signed or issued for someone else, and
// apperrors.ErrTokenExpired for otherwise valid tokens with a missing or past expiry.
func (i *Inspector) Inspect(raw string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	parsed, err := i.parser.ParseWithClaims(raw, claims, i.signer.GetVerificationKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: token is not valid", apperrors.ErrInvalidToken)
	}

	if err := i.validateClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Inspector) validateClaims(claims *AccessTokenClaims) error {
	if claims.Issuer != i.issuer {
		return fmt.Errorf("%w: invalid issuer %q", apperrors.ErrInvalidToken, claims.Issuer)
	}
	if !slices.Contains(claims.Audience, i.audience) {
		return fmt.Errorf("%w: invalid audience", apperrors.ErrInvalidToken)
	}
	if claims.Subject == "" {
		return fmt.Errorf("%w: missing subject", apperrors.ErrInvalidToken)
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: missing expiration", apperrors.ErrTokenExpired)
	}
	if !i.nowFunc().Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w: expired at %s", apperrors.ErrTokenExpired, claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
