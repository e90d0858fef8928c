package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
	"github.com/jrsteele09/go-resource-auth/oauthmodel"
)

const maxRequestBodyBytes = 1 << 20

// CompleteAuthorizationRequest is the body posted once the user has approved an
// authorization request at the upstream identity provider.
type CompleteAuthorizationRequest struct {
	oauthmodel.AuthorizationRequest
	IdentityAssertion string `json:"identity_assertion"`
}

type CompleteAuthorizationResponse struct {
	RedirectURI string `json:"redirect_uri"`
}

// CompleteAuthorizationHandler finishes an approved authorization attempt and
// returns the client redirect carrying the issued code.
func (s *Server) CompleteAuthorizationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

		var body CompleteAuthorizationRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeFlowError(w, r, apperrors.Describe(apperrors.ErrInvalidRequest, "request body must be a JSON object"))
			return
		}

		completion, err := s.auth.CompleteAuthorization(r.Context(), &body.AuthorizationRequest, body.IdentityAssertion)
		if err != nil {
			writeFlowError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, CompleteAuthorizationResponse{RedirectURI: completion.RedirectURI})
	}
}

// TokenHandler redeems a code for an access token.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

		if err := r.ParseForm(); err != nil {
			writeFlowError(w, r, apperrors.Describe(apperrors.ErrInvalidRequest, "failed to parse form data"))
			return
		}

		resp, err := s.auth.ExchangeCode(r.Context(), oauthmodel.TokenRequestFromForm(r.PostForm))
		if err != nil {
			writeFlowError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
