package resource_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-resource-auth/resource"
	"github.com/stretchr/testify/require"
)

const testMetadataURL = "https://api.example.com/mcp/.well-known/oauth-protected-resource"

func TestChallengeString(t *testing.T) {
	tests := []struct {
		name      string
		challenge resource.Challenge
		want      string
	}{
		{
			name:      "metadata only",
			challenge: resource.Challenge{ResourceMetadataURL: testMetadataURL},
			want:      `Bearer, resource_metadata="` + testMetadataURL + `"`,
		},
		{
			name: "all fields",
			challenge: resource.Challenge{
				ResourceMetadataURL: testMetadataURL,
				Error:               "insufficient_scope",
				ErrorDescription:    "more please",
				Scope:               "read write",
			},
			want: `Bearer, resource_metadata="` + testMetadataURL + `", error="insufficient_scope", error_description="more please", scope="read write"`,
		},
		{
			name: "quotes escaped",
			challenge: resource.Challenge{
				ResourceMetadataURL: testMetadataURL,
				Error:               "invalid_token",
				ErrorDescription:    `bad "token" \ here`,
			},
			want: `Bearer, resource_metadata="` + testMetadataURL + `", error="invalid_token", error_description="bad \"token\" \\ here"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.challenge.String())
		})
	}
}

func TestRespond(t *testing.T) {
	responder := resource.NewChallengeResponder(testMetadataURL)

	t.Run("server error has no challenge", func(t *testing.T) {
		rec := httptest.NewRecorder()
		responder.Respond(rec, errors.New("database on fire"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Empty(t, rec.Header().Get("WWW-Authenticate"))

		var body resource.ChallengeBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "server_error", body.Error)
		require.NotContains(t, body.ErrorDescription, "database")
		require.Nil(t, body.Meta)
	})

	t.Run("body mirrors header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		responder.Respond(rec, &resource.ValidationError{
			Kind:           resource.KindInsufficientScope,
			Description:    "need admin",
			RequiredScopes: []string{"admin"},
		})

		require.Equal(t, http.StatusForbidden, rec.Code)
		header := rec.Header().Get("WWW-Authenticate")
		require.Equal(t, `Bearer, resource_metadata="`+testMetadataURL+`", error="insufficient_scope", error_description="need admin", scope="admin"`, header)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body resource.ChallengeBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "insufficient_scope", body.Error)
		require.Equal(t, "need admin", body.ErrorDescription)
		require.Equal(t, header, body.Meta[resource.MetaWWWAuthenticateKey])
	})
}
