// Package identity verifies upstream identity assertions (OIDC ID tokens) and
// turns them into namespaced subject identifiers.
package identity

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
)

// VerifiedIdentity is the result of a successful assertion check.
type VerifiedIdentity struct {
	// SubjectID is "<namespace>:<sub>" so subjects from different providers never collide.
	SubjectID string
	// IssuerAppID is the application the assertion was issued to (azp, else first aud).
	IssuerAppID string
}

// Verifier checks an identity assertion. Failures caused by the assertion
// itself wrap apperrors.ErrIdentityInvalid.
type Verifier interface {
	Verify(ctx context.Context, assertion string) (*VerifiedIdentity, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, assertion string) (*VerifiedIdentity, error)

func (f VerifierFunc) Verify(ctx context.Context, assertion string) (*VerifiedIdentity, error) {
	return f(ctx, assertion)
}

// OIDCVerifier verifies ID tokens issued by a single OpenID provider.
type OIDCVerifier struct {
	issuer    string
	clientID  string
	namespace string
	nowFunc   func() time.Time

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

type OIDCVerifierOption func(*OIDCVerifier)

// WithNamespace overrides the subject namespace (default: issuer host).
func WithNamespace(namespace string) OIDCVerifierOption {
	return func(v *OIDCVerifier) {
		if namespace != "" {
			v.namespace = namespace
		}
	}
}

// WithNowFunc overrides the clock used for the expiry check.
func WithNowFunc(nowFunc func() time.Time) OIDCVerifierOption {
	return func(v *OIDCVerifier) {
		v.nowFunc = nowFunc
	}
}

// NewOIDCVerifier creates a verifier that discovers the provider's keys on first use.
// An empty clientID skips the audience check.
func NewOIDCVerifier(issuer, clientID string, opts ...OIDCVerifierOption) (*OIDCVerifier, error) {
	if issuer == "" {
		return nil, fmt.Errorf("[NewOIDCVerifier] identity provider issuer is required")
	}
	v := &OIDCVerifier{
		issuer:    issuer,
		clientID:  clientID,
		namespace: defaultNamespace(issuer),
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// NewStaticOIDCVerifier creates a verifier for a provider whose signing keys are pinned.
func NewStaticOIDCVerifier(issuer, clientID string, keySet oidc.KeySet, opts ...OIDCVerifierOption) (*OIDCVerifier, error) {
	v, err := NewOIDCVerifier(issuer, clientID, opts...)
	if err != nil {
		return nil, err
	}
	v.verifier = oidc.NewVerifier(issuer, keySet, v.oidcConfig())
	return v, nil
}

func (v *OIDCVerifier) oidcConfig() *oidc.Config {
	return &oidc.Config{
		ClientID:          v.clientID,
		SkipClientIDCheck: v.clientID == "",
		Now:               v.nowFunc,
	}
}

func (v *OIDCVerifier) idTokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.verifier != nil {
		return v.verifier, nil
	}

	// The provider keeps the context for background key refreshes.
	provider, err := oidc.NewProvider(context.WithoutCancel(ctx), v.issuer)
	if err != nil {
		return nil, fmt.Errorf("[OIDCVerifier] provider discovery for %s failed: %w", v.issuer, err)
	}
	v.verifier = provider.Verifier(v.oidcConfig())
	return v.verifier, nil
}

// Verify checks the assertion's signature, issuer, audience and expiry.
func (v *OIDCVerifier) Verify(ctx context.Context, assertion string) (*VerifiedIdentity, error) {
	if assertion == "" {
		return nil, fmt.Errorf("%w: assertion is empty", apperrors.ErrIdentityInvalid)
	}

	verifier, err := v.idTokenVerifier(ctx)
	if err != nil {
		return nil, err
	}

	idToken, err := verifier.Verify(ctx, assertion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrIdentityInvalid, err)
	}
	if idToken.Subject == "" {
		return nil, fmt.Errorf("%w: assertion has no subject", apperrors.ErrIdentityInvalid)
	}

	var extra struct {
		AuthorizedParty string `json:"azp"`
	}
	if err := idToken.Claims(&extra); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrIdentityInvalid, err)
	}

	appID := extra.AuthorizedParty
	if appID == "" && len(idToken.Audience) > 0 {
		appID = idToken.Audience[0]
	}

	return &VerifiedIdentity{
		SubjectID:   v.namespace + ":" + idToken.Subject,
		IssuerAppID: appID,
	}, nil
}

func defaultNamespace(issuer string) string {
	if u, err := url.Parse(issuer); err == nil && u.Host != "" {
		return u.Host
	}
	return "idp"
}
