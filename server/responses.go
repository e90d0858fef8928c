package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
	"github.com/jrsteele09/go-resource-auth/oauthmodel"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, oauthmodel.ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}

type flowError struct {
	status int
	code   string
}

// flowErrors maps authorization flow sentinels to their HTTP status and OAuth error code.
var flowErrors = []struct {
	kind error
	flowError
}{
	{apperrors.ErrInvalidRequest, flowError{http.StatusBadRequest, oauthmodel.ErrorCodeInvalidRequest}},
	{apperrors.ErrUnsupportedChallengeMethod, flowError{http.StatusBadRequest, oauthmodel.ErrorCodeInvalidRequest}},
	{apperrors.ErrInvalidScope, flowError{http.StatusBadRequest, oauthmodel.ErrorCodeInvalidScope}},
	{apperrors.ErrIdentityInvalid, flowError{http.StatusUnauthorized, oauthmodel.ErrorCodeAccessDenied}},
	{apperrors.ErrAttemptInProgress, flowError{http.StatusConflict, oauthmodel.ErrorCodeAttemptInProgress}},
	{apperrors.ErrInvalidGrant, flowError{http.StatusBadRequest, oauthmodel.ErrorCodeInvalidGrant}},
	{apperrors.ErrUnsupportedGrantType, flowError{http.StatusBadRequest, oauthmodel.ErrorCodeUnsupportedGrantType}},
}

// writeFlowError renders err as an OAuth error response. Errors outside the
// known flow kinds are logged and reported as a generic server_error.
func writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	for _, fe := range flowErrors {
		if !apperrors.Is(err, fe.kind) {
			continue
		}
		description, ok := apperrors.DescriptionOf(err)
		if !ok {
			description = fe.kind.Error()
		}
		writeJSONError(w, fe.code, description, fe.status)
		return
	}

	log.Error().Err(err).Str("path", r.URL.Path).Msg("Authorization flow failed")
	writeJSONError(w, oauthmodel.ErrorCodeServerError, "internal server error", http.StatusInternalServerError)
}
