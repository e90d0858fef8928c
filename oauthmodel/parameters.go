package oauthmodel

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"net/url"
	"strings"

	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
)

// AuthorizationRequest holds the parameters of an authorization attempt that
// the user has already approved. They arrive at the completion endpoint together
// with the upstream identity assertion.
type AuthorizationRequest struct {
	// ClientID identifies the application requesting authorization.
	// Required: Yes
	// Example: "web-app-client"
	// Stamped into the issued token as client_id.
	ClientID string `json:"client_id"`

	// RedirectURI is where the authorization response will be sent.
	// Required: Yes
	// Example: "https://myapp.com/callback?tab=1"
	// Must be an absolute URL without a fragment. Existing query parameters are kept.
	RedirectURI string `json:"redirect_uri"`

	// Scope specifies the permissions being requested, space separated.
	// Required: No (the server's default scope is granted when empty)
	// Example: "read write"
	Scope string `json:"scope,omitempty"`

	// State is an opaque value used by the client to maintain state between request and callback.
	// Required: Recommended (CSRF protection)
	// Echoed back verbatim when non-empty.
	State string `json:"state"`

	// CodeChallenge is the PKCE challenge derived from code_verifier.
	// Required: Yes
	// Example: BASE64URL(SHA256(code_verifier))
	CodeChallenge string `json:"code_challenge"`

	// CodeChallengeMethod specifies how code_challenge was derived.
	// Required: Yes
	// Only "S256" is accepted.
	CodeChallengeMethod CodeMethodType `json:"code_challenge_method"`
}

// Validate checks the request locally. It performs no I/O.
func (p *AuthorizationRequest) Validate() error {
	required := []struct {
		name, value string
	}{
		{"client_id", p.ClientID},
		{"redirect_uri", p.RedirectURI},
		{"code_challenge", p.CodeChallenge},
		{"code_challenge_method", string(p.CodeChallengeMethod)},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return apperrors.Describe(apperrors.ErrInvalidRequest, "%s is required", field.name)
		}
	}

	if p.CodeChallengeMethod != CodeMethodTypeS256 {
		return apperrors.Describe(apperrors.ErrUnsupportedChallengeMethod, "code_challenge_method must be S256")
	}

	if _, err := p.redirectURL(); err != nil {
		return err
	}
	return nil
}

func (p *AuthorizationRequest) redirectURL() (*url.URL, error) {
	u, err := url.Parse(p.RedirectURI)
	if err != nil || !u.IsAbs() || u.Opaque != "" {
		return nil, apperrors.Describe(apperrors.ErrInvalidRequest, "redirect_uri must be an absolute URL")
	}
	if u.Fragment != "" {
		return nil, apperrors.Describe(apperrors.ErrInvalidRequest, "redirect_uri must not contain a fragment")
	}
	return u, nil
}

// RedirectWithCode returns the redirect URI with code and state appended to its query.
func (p *AuthorizationRequest) RedirectWithCode(code string) (string, error) {
	u, err := p.redirectURL()
	if err != nil {
		return "", err
	}
	query := u.Query()
	query.Set("code", code)
	if p.State != "" {
		query.Set("state", p.State)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// AttemptKey identifies the authorization attempt. Retries of the same request
// map to the same key.
func (p *AuthorizationRequest) AttemptKey() string {
	h := sha256.New()
	for _, part := range []string{p.ClientID, p.RedirectURI, p.State, p.CodeChallenge} {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(part)))
		h.Write(length[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeScope collapses runs of whitespace in a space separated scope string.
func NormalizeScope(scope string) string {
	return strings.Join(strings.Fields(scope), " ")
}
