package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-resource-auth/oauthmodel"
	"github.com/jrsteele09/go-resource-auth/token"
	"github.com/rs/zerolog/log"
)

// ProtectedResourceMetadata is the RFC 9728 protected resource metadata document.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	JWKSURI                string   `json:"jwks_uri,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// AuthorizationServerMetadata is the RFC 8414 authorization server metadata document.
type AuthorizationServerMetadata struct {
	Issuer                        string   `json:"issuer"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	JWKSURI                       string   `json:"jwks_uri,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported"`
	GrantTypesSupported           []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethods      []string `json:"token_endpoint_auth_methods_supported"`
}

// jwksURI is empty for symmetric signers, whose keys are never published.
func (s *Server) jwksURI() string {
	if _, ok := s.signer.(*token.KeyPairSigner); !ok {
		return ""
	}
	return s.config.GetBaseURL() + RouteWellKnownJWKS
}

func (s *Server) ProtectedResourceMetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ProtectedResourceMetadata{
			Resource:               s.config.GetAudience(),
			AuthorizationServers:   []string{s.config.GetIssuer()},
			JWKSURI:                s.jwksURI(),
			ScopesSupported:        s.config.GetSupportedScopes(),
			BearerMethodsSupported: []string{"header"},
			ResourceName:           s.config.GetAppName(),
		})
	}
}

func (s *Server) AuthorizationServerMetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, AuthorizationServerMetadata{
			Issuer:                        s.config.GetIssuer(),
			TokenEndpoint:                 s.config.GetBaseURL() + RouteToken,
			JWKSURI:                       s.jwksURI(),
			ScopesSupported:               s.config.GetSupportedScopes(),
			ResponseTypesSupported:        []string{"code"},
			GrantTypesSupported:           []string{string(oauthmodel.AuthorizationCodeGrant)},
			CodeChallengeMethodsSupported: []string{string(oauthmodel.CodeMethodTypeS256)},
			TokenEndpointAuthMethods:      []string{"none"},
		})
	}
}

// JWKSHandler returns the JSON Web Key Set used to validate tokens
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.jwksURI() == "" {
			http.NotFound(w, r)
			return
		}

		set, err := token.JWKS(s.signer)
		if err != nil {
			log.Error().Err(err).Msg("Failed to build JWKS")
			writeJSONError(w, oauthmodel.ErrorCodeServerError, "failed to build key set", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, set)
	}
}

// HealthHandler reports whether the attempt store is reachable.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := s.attempts.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("Attempt store unreachable")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
