package oauthmodel

// ErrorResponse is the JSON body of an OAuth error.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// OAuth error codes.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeAttemptInProgress    = "attempt_in_progress"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeServerError          = "server_error"
)
