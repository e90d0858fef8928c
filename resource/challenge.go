package resource

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// MetaWWWAuthenticateKey is the _meta entry mirroring the WWW-Authenticate
// header for clients that cannot read response headers.
const MetaWWWAuthenticateKey = "mcp/www_authenticate"

// Challenge is a Bearer WWW-Authenticate challenge. Empty optional fields are omitted.
type Challenge struct {
	ResourceMetadataURL string
	Error               string
	ErrorDescription    string
	Scope               string
}

// String renders the header value, e.g.
//
//	Bearer, resource_metadata="https://api.example.com/mcp/.well-known/oauth-protected-resource", error="invalid_token"
func (c Challenge) String() string {
	var b strings.Builder
	b.WriteString(`Bearer, resource_metadata="`)
	b.WriteString(EscapeQuotes(c.ResourceMetadataURL))
	b.WriteByte('"')
	writeParam(&b, "error", c.Error)
	writeParam(&b, "error_description", c.ErrorDescription)
	writeParam(&b, "scope", c.Scope)
	return b.String()
}

func writeParam(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	b.WriteString(", ")
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(EscapeQuotes(value))
	b.WriteByte('"')
}

// EscapeQuotes escapes backslashes and double quotes for a quoted-string.
func EscapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// ChallengeBody is the JSON body of a failed validation.
type ChallengeBody struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description,omitempty"`
	Meta             map[string]string `json:"_meta,omitempty"`
}

// ChallengeResponse is the full HTTP rendering of a validation failure.
// WWWAuthenticate is empty when no challenge header is sent.
type ChallengeResponse struct {
	Status          int
	WWWAuthenticate string
	Body            ChallengeBody
}

// ChallengeResponder turns validation failures into HTTP responses.
type ChallengeResponder struct {
	resourceMetadataURL string
}

func NewChallengeResponder(resourceMetadataURL string) *ChallengeResponder {
	return &ChallengeResponder{resourceMetadataURL: resourceMetadataURL}
}

// Build maps err to a response. Errors that are not a *ValidationError are
// treated as server errors.
func (c *ChallengeResponder) Build(err error) ChallengeResponse {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		verr = newServerError(err)
	}

	var status int
	var challenge Challenge
	var bodyError string
	switch verr.Kind {
	case KindUnauthorized:
		// No error attributes when the request carried no credentials.
		status = http.StatusUnauthorized
		challenge = Challenge{ResourceMetadataURL: c.resourceMetadataURL}
		bodyError = "unauthorized"
	case KindInvalidToken, KindTokenExpired:
		status = http.StatusUnauthorized
		bodyError = "invalid_token"
		challenge = Challenge{
			ResourceMetadataURL: c.resourceMetadataURL,
			Error:               bodyError,
			ErrorDescription:    verr.Description,
		}
	case KindInsufficientScope:
		status = http.StatusForbidden
		bodyError = "insufficient_scope"
		challenge = Challenge{
			ResourceMetadataURL: c.resourceMetadataURL,
			Error:               bodyError,
			ErrorDescription:    verr.Description,
			Scope:               strings.Join(verr.RequiredScopes, " "),
		}
	default:
		return ChallengeResponse{
			Status: http.StatusInternalServerError,
			Body: ChallengeBody{
				Error:            "server_error",
				ErrorDescription: newServerError(nil).Description,
			},
		}
	}

	header := challenge.String()
	return ChallengeResponse{
		Status:          status,
		WWWAuthenticate: header,
		Body: ChallengeBody{
			Error:            bodyError,
			ErrorDescription: verr.Description,
			Meta:             map[string]string{MetaWWWAuthenticateKey: header},
		},
	}
}

// Respond writes the response for err.
func (c *ChallengeResponder) Respond(w http.ResponseWriter, err error) {
	resp := c.Build(err)
	if resp.WWWAuthenticate != "" {
		w.Header().Set("WWW-Authenticate", resp.WWWAuthenticate)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(resp.Status)
	if err := json.NewEncoder(w).Encode(resp.Body); err != nil {
		log.Error().Err(err).Msg("Failed to write challenge response")
	}
}
