package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-resource-auth/auth/attempts"
	"github.com/jrsteele09/go-resource-auth/identity"
	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
	"github.com/jrsteele09/go-resource-auth/internal/metrics"
	"github.com/jrsteele09/go-resource-auth/oauthmodel"
	"github.com/jrsteele09/go-resource-auth/token"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

var tracer = otel.Tracer("github.com/jrsteele09/go-resource-auth/auth")

// TokenMinter signs access tokens.
type TokenMinter interface {
	CreateAccessToken(req token.AccessTokenRequest) (*token.IssuedToken, error)
}

// TokenInspector verifies access tokens previously minted by this server.
type TokenInspector interface {
	Inspect(raw string) (*token.AccessTokenClaims, error)
}

// Completion is the outcome of a completed authorization attempt.
type Completion struct {
	RedirectURI string
	// Replayed is true when an earlier call already completed the same attempt.
	Replayed bool
}

// AuthorizationService completes approved authorization attempts and exchanges
// issued codes at the token endpoint.
type AuthorizationService struct {
	verifier        identity.Verifier
	minter          TokenMinter
	inspector       TokenInspector
	attempts        attempts.Repo
	defaultScope    string
	supportedScopes map[string]struct{}
	metrics         *metrics.Metrics
	nowTime         func() time.Time
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// WithDefaultScope sets the scope granted when a request names none.
func WithDefaultScope(scope string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		if scope = oauthmodel.NormalizeScope(scope); scope != "" {
			as.defaultScope = scope
		}
	}
}

// WithSupportedScopes restricts requested scopes to the given set.
func WithSupportedScopes(scopes ...string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		if len(scopes) == 0 {
			return
		}
		as.supportedScopes = make(map[string]struct{}, len(scopes))
		for _, s := range scopes {
			as.supportedScopes[s] = struct{}{}
		}
	}
}

// WithMetrics records completion and exchange outcomes on m.
func WithMetrics(m *metrics.Metrics) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.metrics = m
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(
	verifier identity.Verifier,
	minter TokenMinter,
	inspector TokenInspector,
	attemptRepo attempts.Repo,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if verifier == nil {
		return nil, errors.New("[NewAuthorizationService] identity verifier is required")
	}
	if minter == nil {
		return nil, errors.New("[NewAuthorizationService] token minter is required")
	}
	if inspector == nil {
		return nil, errors.New("[NewAuthorizationService] token inspector is required")
	}
	if attemptRepo == nil {
		return nil, errors.New("[NewAuthorizationService] attempts repo is required")
	}

	authService := &AuthorizationService{
		verifier:     verifier,
		minter:       minter,
		inspector:    inspector,
		attempts:     attemptRepo,
		defaultScope: "read",
		nowTime:      time.Now,
	}

	for _, opt := range options {
		opt(authService)
	}

	return authService, nil
}

// CompleteAuthorization verifies the identity assertion for an approved request,
// mints an access token and returns the client redirect carrying it as code.
//
// Each attempt (client, redirect, state, challenge) runs at most once. A
// concurrent call for a running attempt fails with apperrors.ErrAttemptInProgress
// and a call for a completed attempt returns the stored redirect once the
// assertion verifies as the same subject. A failed attempt is reset so it can
// be retried.
func (as *AuthorizationService) CompleteAuthorization(ctx context.Context, req *oauthmodel.AuthorizationRequest, identityAssertion string) (*Completion, error) {
	start := as.nowTime()
	ctx, span := tracer.Start(ctx, "AuthorizationService.CompleteAuthorization")
	defer span.End()

	if req == nil {
		return nil, apperrors.Describe(apperrors.ErrInvalidRequest, "authorization request is required")
	}
	span.SetAttributes(attribute.String("oauth.client_id", req.ClientID))

	completion, outcome, err := as.completeOnce(ctx, req, identityAssertion)
	as.metrics.ObserveAuthorization(outcome, start)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return completion, nil
}

func (as *AuthorizationService) completeOnce(ctx context.Context, req *oauthmodel.AuthorizationRequest, identityAssertion string) (*Completion, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "invalid_request", err
	}
	scope, err := as.grantedScope(req.Scope)
	if err != nil {
		return nil, "invalid_scope", err
	}

	key := req.AttemptKey()
	latch, began, err := as.attempts.Begin(ctx, key)
	if err != nil {
		return nil, "error", fmt.Errorf("[AuthorizationService CompleteAuthorization] begin attempt: %w", err)
	}
	if !began {
		if latch.State == attempts.StateDone {
			return as.replay(ctx, latch, identityAssertion)
		}
		return nil, "in_progress", apperrors.ErrAttemptInProgress
	}

	// Latch writes outlive the caller's cancellation.
	latchCtx := context.WithoutCancel(ctx)
	defer func() {
		if p := recover(); p != nil {
			_ = as.attempts.Reset(latchCtx, key, latch.Owner)
			panic(p)
		}
	}()

	result, err := as.issue(ctx, req, scope, identityAssertion)
	if err != nil {
		if resetErr := as.attempts.Reset(latchCtx, key, latch.Owner); resetErr != nil {
			log.Error().Err(resetErr).Str("client_id", req.ClientID).Msg("Failed to reset authorization attempt")
		}
		if errors.Is(err, apperrors.ErrIdentityInvalid) {
			return nil, "identity_invalid", err
		}
		return nil, "error", err
	}

	// The token is already minted; a lost Done marker leaves the latch Running
	// until it expires, which still rules out a second mint.
	if err := as.attempts.Complete(latchCtx, key, latch.Owner, result); err != nil {
		log.Error().Err(err).Str("client_id", req.ClientID).Msg("Failed to record completed authorization attempt")
	}
	return &Completion{RedirectURI: result.RedirectURI}, "completed", nil
}

// replay hands back the stored redirect of a completed attempt, but only to
// the subject it was issued to.
func (as *AuthorizationService) replay(ctx context.Context, latch attempts.Latch, identityAssertion string) (*Completion, string, error) {
	verified, err := as.verifier.Verify(ctx, identityAssertion)
	if err != nil {
		if errors.Is(err, apperrors.ErrIdentityInvalid) {
			return nil, "identity_invalid", err
		}
		return nil, "error", err
	}
	if latch.SubjectID == "" || subtle.ConstantTimeCompare([]byte(verified.SubjectID), []byte(latch.SubjectID)) != 1 {
		return nil, "identity_invalid", apperrors.Describe(apperrors.ErrIdentityInvalid, "identity does not match the completed attempt")
	}
	return &Completion{RedirectURI: latch.RedirectURI, Replayed: true}, "replayed", nil
}

func (as *AuthorizationService) issue(ctx context.Context, req *oauthmodel.AuthorizationRequest, scope, identityAssertion string) (attempts.Result, error) {
	verified, err := as.verifier.Verify(ctx, identityAssertion)
	if err != nil {
		return attempts.Result{}, err
	}

	issued, err := as.minter.CreateAccessToken(token.AccessTokenRequest{
		Subject:       verified.SubjectID,
		ClientID:      req.ClientID,
		Scope:         scope,
		CodeChallenge: req.CodeChallenge,
	})
	if err != nil {
		return attempts.Result{}, fmt.Errorf("[AuthorizationService CompleteAuthorization] mint access token: %w", err)
	}

	redirectURI, err := req.RedirectWithCode(issued.Raw)
	if err != nil {
		return attempts.Result{}, err
	}

	log.Info().
		Str("client_id", req.ClientID).
		Str("sub", verified.SubjectID).
		Str("scope", scope).
		Str("jti", issued.Claims.ID).
		Msg("Authorization completed")
	return attempts.Result{SubjectID: verified.SubjectID, RedirectURI: redirectURI}, nil
}

func (as *AuthorizationService) grantedScope(requested string) (string, error) {
	scope := oauthmodel.NormalizeScope(requested)
	if scope == "" {
		return as.defaultScope, nil
	}
	if as.supportedScopes == nil {
		return scope, nil
	}
	for _, s := range strings.Fields(scope) {
		if _, ok := as.supportedScopes[s]; !ok {
			return "", apperrors.Describe(apperrors.ErrInvalidScope, "scope %q is not supported", s)
		}
	}
	return scope, nil
}

// ExchangeCode redeems a code issued by CompleteAuthorization. The PKCE
// verifier must hash to the challenge bound into the code and the client must
// match the one that started the attempt.
func (as *AuthorizationService) ExchangeCode(ctx context.Context, req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	_, span := tracer.Start(ctx, "AuthorizationService.ExchangeCode")
	defer span.End()
	span.SetAttributes(attribute.String("oauth.client_id", req.ClientID))

	resp, outcome, err := as.exchange(req)
	as.metrics.ObserveExchange(outcome)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return resp, nil
}

func (as *AuthorizationService) exchange(req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, string, error) {
	if err := req.Validate(); err != nil {
		if errors.Is(err, apperrors.ErrUnsupportedGrantType) {
			return nil, "unsupported_grant_type", err
		}
		return nil, "invalid_request", err
	}

	claims, err := as.inspector.Inspect(req.Code)
	if err != nil {
		return nil, "invalid_grant", apperrors.Describe(apperrors.ErrInvalidGrant, "code is invalid or expired")
	}

	challenge := oauth2.S256ChallengeFromVerifier(req.CodeVerifier)
	if claims.CodeChallenge == "" || subtle.ConstantTimeCompare([]byte(challenge), []byte(claims.CodeChallenge)) != 1 {
		return nil, "invalid_grant", apperrors.Describe(apperrors.ErrInvalidGrant, "code_verifier does not match code_challenge")
	}
	if claims.ClientID != req.ClientID {
		return nil, "invalid_grant", apperrors.Describe(apperrors.ErrInvalidGrant, "code was issued to another client")
	}

	expiresIn := int(claims.ExpiresAt.Sub(as.nowTime()).Seconds())
	return &oauthmodel.TokenResponse{
		AccessToken: req.Code,
		TokenType:   oauthmodel.TokenTypeBearer,
		ExpiresIn:   max(expiresIn, 0),
		Scope:       claims.Scope,
	}, "issued", nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
