package oauthmodel

import (
	"net/url"

	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
)

// TokenRequest is the form posted to the token endpoint.
type TokenRequest struct {
	GrantType    GrantType
	Code         string
	CodeVerifier string
	ClientID     string
	RedirectURI  string
}

// TokenRequestFromForm reads a TokenRequest from url-encoded form values.
func TokenRequestFromForm(form url.Values) TokenRequest {
	return TokenRequest{
		GrantType:    GrantType(form.Get("grant_type")),
		Code:         form.Get("code"),
		CodeVerifier: form.Get("code_verifier"),
		ClientID:     form.Get("client_id"),
		RedirectURI:  form.Get("redirect_uri"),
	}
}

func (r TokenRequest) Validate() error {
	if r.GrantType != AuthorizationCodeGrant {
		return apperrors.Describe(apperrors.ErrUnsupportedGrantType, "grant_type must be authorization_code")
	}
	switch {
	case r.Code == "":
		return apperrors.Describe(apperrors.ErrInvalidRequest, "code is required")
	case r.CodeVerifier == "":
		return apperrors.Describe(apperrors.ErrInvalidRequest, "code_verifier is required")
	case r.ClientID == "":
		return apperrors.Describe(apperrors.ErrInvalidRequest, "client_id is required")
	}
	return nil
}
