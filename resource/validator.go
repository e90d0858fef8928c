package resource

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
	"github.com/jrsteele09/go-resource-auth/internal/metrics"
	"github.com/jrsteele09/go-resource-auth/token"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/jrsteele09/go-resource-auth/resource")

// TokenInspector verifies a raw access token. Errors wrap
// apperrors.ErrInvalidToken or apperrors.ErrTokenExpired; anything else is a
// server error.
type TokenInspector interface {
	Inspect(raw string) (*token.AccessTokenClaims, error)
}

// Validator authenticates bearer tokens on incoming requests.
type Validator struct {
	inspector TokenInspector
	responder *ChallengeResponder
	metrics   *metrics.Metrics
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithMetrics records validation outcomes on m.
func WithMetrics(m *metrics.Metrics) ValidatorOption {
	return func(v *Validator) {
		v.metrics = m
	}
}

// NewValidator creates a Validator that checks tokens with inspector and
// renders rejections with responder.
func NewValidator(inspector TokenInspector, responder *ChallengeResponder, opts ...ValidatorOption) *Validator {
	v := &Validator{
		inspector: inspector,
		responder: responder,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate authenticates r and checks it carries every required scope.
// On failure the error is always a *ValidationError. Checks run in order:
// credential presence, signature/algorithm/issuer/audience, expiry, scope.
func (v *Validator) Validate(r *http.Request, requiredScopes ...string) (auth *DecodedAuth, err error) {
	_, span := tracer.Start(r.Context(), "Validator.Validate")
	defer func() {
		if p := recover(); p != nil {
			auth, err = nil, newServerError(fmt.Errorf("panic during validation: %v", p))
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			span.SetAttributes(attribute.String("auth.rejection", verr.Kind.String()))
			span.SetStatus(codes.Error, verr.Kind.String())
		}
		span.End()
	}()

	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, newUnauthorized()
	}

	claims, err := v.inspector.Inspect(raw)
	switch {
	case errors.Is(err, apperrors.ErrTokenExpired):
		return nil, newTokenExpired(err)
	case errors.Is(err, apperrors.ErrInvalidToken):
		return nil, newInvalidToken(err)
	case err != nil:
		return nil, newServerError(err)
	case claims == nil:
		return nil, newServerError(errors.New("inspector returned no claims"))
	}

	scopes := ParseScopes(claims.Scope)
	required := normalizeRequired(requiredScopes)
	if missing := scopes.Missing(required); len(missing) > 0 {
		return nil, newInsufficientScope(required)
	}

	return &DecodedAuth{
		Token:   raw,
		Decoded: claims,
		UserID:  claims.Subject,
		Scopes:  scopes,
	}, nil
}

// Require returns middleware that admits only requests carrying a valid token
// with every scope in requiredScopes. Admitted requests carry a DecodedAuth in
// their context.
func (v *Validator) Require(requiredScopes ...string) func(http.Handler) http.Handler {
	required := normalizeRequired(requiredScopes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, err := v.Validate(r, required...)
			if err != nil {
				v.reject(w, r, err)
				return
			}
			v.metrics.ObserveValidation("ok")
			next.ServeHTTP(w, r.WithContext(WithDecodedAuth(r.Context(), auth)))
		})
	}
}

func (v *Validator) reject(w http.ResponseWriter, r *http.Request, err error) {
	kind := KindServerError
	var verr *ValidationError
	if errors.As(err, &verr) {
		kind = verr.Kind
	}
	v.metrics.ObserveValidation(kind.String())

	event := log.Debug()
	if kind == KindServerError {
		event = log.Error()
	}
	event.Err(err).Str("kind", kind.String()).Str("path", r.URL.Path).Msg("Rejected request")

	v.responder.Respond(w, err)
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}
