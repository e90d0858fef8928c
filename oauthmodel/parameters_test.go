package oauthmodel_test

import (
	"net/url"
	"testing"

	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
	"github.com/jrsteele09/go-resource-auth/oauthmodel"
	"github.com/stretchr/testify/require"
)

const (
	testClientID      = "client-123"
	testRedirectURI   = "https://app.example.com/callback?tab=settings"
	testState         = "xyz-state"
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func validRequest() *oauthmodel.AuthorizationRequest {
	return &oauthmodel.AuthorizationRequest{
		ClientID:            testClientID,
		RedirectURI:         testRedirectURI,
		State:               testState,
		CodeChallenge:       testCodeChallenge,
		CodeChallengeMethod: oauthmodel.CodeMethodTypeS256,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validRequest().Validate())

	tests := []struct {
		name   string
		mutate func(*oauthmodel.AuthorizationRequest)
		want   error
	}{
		{"missing client", func(r *oauthmodel.AuthorizationRequest) { r.ClientID = "" }, apperrors.ErrInvalidRequest},
		{"missing redirect", func(r *oauthmodel.AuthorizationRequest) { r.RedirectURI = "" }, apperrors.ErrInvalidRequest},
		{"missing challenge", func(r *oauthmodel.AuthorizationRequest) { r.CodeChallenge = "" }, apperrors.ErrInvalidRequest},
		{"missing method", func(r *oauthmodel.AuthorizationRequest) { r.CodeChallengeMethod = "" }, apperrors.ErrInvalidRequest},
		{"plain method", func(r *oauthmodel.AuthorizationRequest) { r.CodeChallengeMethod = "plain" }, apperrors.ErrUnsupportedChallengeMethod},
		{"lowercase method", func(r *oauthmodel.AuthorizationRequest) { r.CodeChallengeMethod = "s256" }, apperrors.ErrUnsupportedChallengeMethod},
		{"relative redirect", func(r *oauthmodel.AuthorizationRequest) { r.RedirectURI = "/callback" }, apperrors.ErrInvalidRequest},
		{"opaque redirect", func(r *oauthmodel.AuthorizationRequest) { r.RedirectURI = "javascript:alert(1)" }, apperrors.ErrInvalidRequest},
		{"fragment redirect", func(r *oauthmodel.AuthorizationRequest) { r.RedirectURI = "https://app.example.com/cb#x" }, apperrors.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := req.Validate()
			require.ErrorIs(t, err, tt.want)
			_, described := apperrors.DescriptionOf(err)
			require.True(t, described)
		})
	}
}

func TestRedirectWithCode(t *testing.T) {
	redirect, err := validRequest().RedirectWithCode("the-code")
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	require.Equal(t, "app.example.com", u.Host)
	require.Equal(t, "/callback", u.Path)
	require.Equal(t, "settings", u.Query().Get("tab"))
	require.Equal(t, "the-code", u.Query().Get("code"))
	require.Equal(t, testState, u.Query().Get("state"))
}

func TestRedirectWithoutState(t *testing.T) {
	req := validRequest()
	req.State = ""
	require.NoError(t, req.Validate())

	redirect, err := req.RedirectWithCode("the-code")
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	require.Equal(t, "the-code", u.Query().Get("code"))
	require.False(t, u.Query().Has("state"))
}

func TestAttemptKey(t *testing.T) {
	a := validRequest()
	b := validRequest()
	require.Equal(t, a.AttemptKey(), b.AttemptKey())

	b.Scope = "admin"
	require.Equal(t, a.AttemptKey(), b.AttemptKey(), "scope does not identify the attempt")

	b.State = "other"
	require.NotEqual(t, a.AttemptKey(), b.AttemptKey())

	// Field boundaries are part of the key.
	c := validRequest()
	c.ClientID, c.RedirectURI = testClientID+"h", testRedirectURI[1:]
	require.NotEqual(t, a.AttemptKey(), c.AttemptKey())
}

func TestTokenRequestValidate(t *testing.T) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"abc"},
		"code_verifier": {"verifier"},
		"client_id":     {testClientID},
	}
	require.NoError(t, oauthmodel.TokenRequestFromForm(form).Validate())

	form.Set("grant_type", "refresh_token")
	require.ErrorIs(t, oauthmodel.TokenRequestFromForm(form).Validate(), apperrors.ErrUnsupportedGrantType)

	form.Set("grant_type", "authorization_code")
	form.Del("code_verifier")
	require.ErrorIs(t, oauthmodel.TokenRequestFromForm(form).Validate(), apperrors.ErrInvalidRequest)
}

func TestNormalizeScope(t *testing.T) {
	require.Equal(t, "read write", oauthmodel.NormalizeScope("  read \t write "))
	require.Empty(t, oauthmodel.NormalizeScope("   "))
}
