package server_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-resource-auth/auth/attempts"
	"github.com/jrsteele09/go-resource-auth/identity"
	"github.com/jrsteele09/go-resource-auth/internal/config"
	"github.com/jrsteele09/go-resource-auth/oauthmodel"
	"github.com/jrsteele09/go-resource-auth/resource"
	"github.com/jrsteele09/go-resource-auth/server"
	"github.com/jrsteele09/go-resource-auth/token"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testIdpIssuer   = "https://accounts.example.com"
	testIdpClientID = "resource-server"
	testClientID    = "web-app"
	testRedirectURI = "https://app.example.com/callback?tab=1"
	testMetadataURL = "http://localhost:8080/mcp/.well-known/oauth-protected-resource"
)

type testFixture struct {
	server   *server.Server
	signer   token.Signer
	idpKey   *rsa.PrivateKey
	verifier string
}

func setupTestFixture(t *testing.T, mutate func(*server.Dependencies)) *testFixture {
	t.Helper()
	idpKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier, err := identity.NewStaticOIDCVerifier(testIdpIssuer, testIdpClientID,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&idpKey.PublicKey}})
	require.NoError(t, err)

	keyPair, err := token.GenerateRSAKeyPair("test-kid", 2048)
	require.NoError(t, err)

	deps := server.Dependencies{
		Verifier: verifier,
		Signer:   token.NewKeyPairSigner(keyPair),
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := server.New(config.New(viper.New()), deps)
	require.NoError(t, err)
	return &testFixture{server: srv, signer: deps.Signer, idpKey: idpKey, verifier: oauth2.GenerateVerifier()}
}

func (f *testFixture) idToken(t *testing.T, sub string) string {
	t.Helper()
	now := time.Now()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": testIdpIssuer,
		"sub": sub,
		"aud": testIdpClientID,
		"iat": now.Add(-time.Minute).Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString(f.idpKey)
	require.NoError(t, err)
	return raw
}

func (f *testFixture) completionBody(scope, assertion string) map[string]string {
	return map[string]string{
		"client_id":             testClientID,
		"redirect_uri":          testRedirectURI,
		"state":                 "xyz",
		"scope":                 scope,
		"code_challenge":        oauth2.S256ChallengeFromVerifier(f.verifier),
		"code_challenge_method": "S256",
		"identity_assertion":    assertion,
	}
}

func (f *testFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) complete(t *testing.T, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, server.RouteAuthorizeComplete, strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/json")
	return f.do(t, req)
}

// issueCode runs a successful completion and returns the code from the redirect.
func (f *testFixture) issueCode(t *testing.T, scope string) string {
	t.Helper()
	rec := f.complete(t, f.completionBody(scope, f.idToken(t, "user-1")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp server.CompleteAuthorizationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	redirect, err := url.Parse(resp.RedirectURI)
	require.NoError(t, err)
	require.Equal(t, "xyz", redirect.Query().Get("state"))
	require.Equal(t, "1", redirect.Query().Get("tab"))
	code := redirect.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func bearerRequest(method, path, accessToken string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return req
}

func decodeChallenge(t *testing.T, rec *httptest.ResponseRecorder) resource.ChallengeBody {
	t.Helper()
	var body resource.ChallengeBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestNew(t *testing.T) {
	t.Run("verifier is required", func(t *testing.T) {
		_, err := server.New(config.New(viper.New()), server.Dependencies{Signer: token.NewHMACSigner([]byte("k"), "")})
		require.Error(t, err)
	})
	t.Run("signer is required", func(t *testing.T) {
		_, err := server.New(config.New(viper.New()), server.Dependencies{
			Verifier: identity.VerifierFunc(func(context.Context, string) (*identity.VerifiedIdentity, error) { return nil, nil }),
		})
		require.Error(t, err)
	})
}

func TestAuthorizationFlow(t *testing.T) {
	t.Run("code grants access to protected resource", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		code := f.issueCode(t, "")

		rec := f.do(t, bearerRequest(http.MethodGet, server.RouteMCP, code))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		var whoami map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &whoami))
		require.Equal(t, "accounts.example.com:user-1", whoami["sub"])
		require.Equal(t, testClientID, whoami["client_id"])
		require.Equal(t, []any{"read"}, whoami["scopes"])
	})

	t.Run("replayed completion returns the same redirect", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		body := f.completionBody("read", f.idToken(t, "user-1"))

		first := f.complete(t, body)
		require.Equal(t, http.StatusOK, first.Code)
		second := f.complete(t, body)
		require.Equal(t, http.StatusOK, second.Code)
		require.JSONEq(t, first.Body.String(), second.Body.String())

		body["identity_assertion"] = "not-a-jwt"
		forged := f.complete(t, body)
		require.Equal(t, http.StatusUnauthorized, forged.Code)
		require.NotContains(t, forged.Body.String(), "redirect_uri")
	})

	t.Run("token exchange", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		code := f.issueCode(t, "read write")

		form := url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"code_verifier": {f.verifier},
			"client_id":     {testClientID},
		}
		req := httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := f.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp oauthmodel.TokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, code, resp.AccessToken)
		require.Equal(t, oauthmodel.TokenTypeBearer, resp.TokenType)
		require.Equal(t, "read write", resp.Scope)
		require.Positive(t, resp.ExpiresIn)
	})

	t.Run("token exchange with wrong verifier", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		code := f.issueCode(t, "")

		form := url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"code_verifier": {oauth2.GenerateVerifier()},
			"client_id":     {testClientID},
		}
		req := httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := f.do(t, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), `"invalid_grant"`)
	})
}

func TestCompleteAuthorizationErrors(t *testing.T) {
	tests := map[string]struct {
		mutate func(f *testFixture, body map[string]string)
		status int
		code   string
	}{
		"plain challenge method": {
			mutate: func(_ *testFixture, b map[string]string) { b["code_challenge_method"] = "plain" },
			status: http.StatusBadRequest,
			code:   oauthmodel.ErrorCodeInvalidRequest,
		},
		"missing client": {
			mutate: func(_ *testFixture, b map[string]string) { delete(b, "client_id") },
			status: http.StatusBadRequest,
			code:   oauthmodel.ErrorCodeInvalidRequest,
		},
		"unsupported scope": {
			mutate: func(_ *testFixture, b map[string]string) { b["scope"] = "read delete" },
			status: http.StatusBadRequest,
			code:   oauthmodel.ErrorCodeInvalidScope,
		},
		"forged assertion": {
			mutate: func(_ *testFixture, b map[string]string) { b["identity_assertion"] = "not-a-jwt" },
			status: http.StatusUnauthorized,
			code:   oauthmodel.ErrorCodeAccessDenied,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := setupTestFixture(t, nil)
			body := f.completionBody("", f.idToken(t, "user-1"))
			tc.mutate(f, body)

			rec := f.complete(t, body)
			require.Equal(t, tc.status, rec.Code)

			var resp oauthmodel.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Equal(t, tc.code, resp.Error)
			require.NotEmpty(t, resp.ErrorDescription)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		req := httptest.NewRequest(http.MethodPost, server.RouteAuthorizeComplete, strings.NewReader("{"))
		rec := f.do(t, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), oauthmodel.ErrorCodeInvalidRequest)
	})

	t.Run("failed attempt can be retried", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		body := f.completionBody("", "not-a-jwt")
		require.Equal(t, http.StatusUnauthorized, f.complete(t, body).Code)

		body["identity_assertion"] = f.idToken(t, "user-1")
		require.Equal(t, http.StatusOK, f.complete(t, body).Code)
	})
}

func TestProtectedRoutes(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := f.do(t, bearerRequest(http.MethodGet, server.RouteMCP, ""))
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		header := rec.Header().Get("WWW-Authenticate")
		require.Equal(t, `Bearer, resource_metadata="`+testMetadataURL+`"`, header)
		body := decodeChallenge(t, rec)
		require.Equal(t, "unauthorized", body.Error)
		require.Equal(t, header, body.Meta[resource.MetaWWWAuthenticateKey])
	})

	t.Run("invalid token", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := f.do(t, bearerRequest(http.MethodGet, server.RouteMCP, "garbage"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
		require.Equal(t, "invalid_token", decodeChallenge(t, rec).Error)
	})

	t.Run("token from another signer", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		code := f.issueCode(t, "")
		other := setupTestFixture(t, nil)
		rec := other.do(t, bearerRequest(http.MethodGet, server.RouteMCP, code))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	scopeTests := map[string]struct {
		method   string
		path     string
		scope    string
		status   int
		required string
	}{
		"read on api":            {http.MethodGet, "/api/things", "read", http.StatusOK, ""},
		"write needs write":      {http.MethodPost, "/api/things", "read", http.StatusForbidden, "write"},
		"write with write scope": {http.MethodDelete, "/api/things/1", "write", http.StatusOK, ""},
		"admin root":             {http.MethodGet, server.RouteAPIAdmin, "read write", http.StatusForbidden, "admin"},
		"admin subtree":          {http.MethodGet, "/api/admin/users", "read", http.StatusForbidden, "admin"},
		"admin granted":          {http.MethodGet, "/api/admin/users", "admin", http.StatusOK, ""},
		"mcp post needs read":    {http.MethodPost, server.RouteMCP, "write", http.StatusForbidden, "read"},
	}

	for name, tc := range scopeTests {
		t.Run(name, func(t *testing.T) {
			f := setupTestFixture(t, nil)
			code := f.issueCode(t, tc.scope)

			rec := f.do(t, bearerRequest(tc.method, tc.path, code))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.required == "" {
				return
			}
			header := rec.Header().Get("WWW-Authenticate")
			require.Contains(t, header, `error="insufficient_scope"`)
			require.Contains(t, header, `scope="`+tc.required+`"`)
			body := decodeChallenge(t, rec)
			require.Equal(t, "insufficient_scope", body.Error)
			require.Equal(t, header, body.Meta[resource.MetaWWWAuthenticateKey])
		})
	}

	t.Run("upstream receives subject", func(t *testing.T) {
		var gotSubject, gotAuthorization string
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotSubject = r.Header.Get(resource.HeaderAuthenticatedSubject)
			gotAuthorization = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusTeapot)
		}))
		t.Cleanup(upstream.Close)

		caller, err := resource.NewUpstreamCaller(upstream.URL, upstream.Client())
		require.NoError(t, err)
		f := setupTestFixture(t, func(d *server.Dependencies) { d.ResourceCaller = caller })
		code := f.issueCode(t, "")

		rec := f.do(t, bearerRequest(http.MethodGet, "/api/things", code))
		require.Equal(t, http.StatusTeapot, rec.Code)
		require.Equal(t, "accounts.example.com:user-1", gotSubject)
		require.Empty(t, gotAuthorization)
	})
}

func TestIssuedTokenScopeRoundTrip(t *testing.T) {
	f := setupTestFixture(t, nil)
	code := f.issueCode(t, "read write")

	cfg := config.New(viper.New())
	validator := resource.NewValidator(
		token.NewInspector(f.signer, cfg.GetIssuer(), cfg.GetAudience()),
		resource.NewChallengeResponder(cfg.GetResourceMetadataURL()),
	)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, found := resource.DecodedAuthFromContext(r.Context())
		require.True(t, found)
		require.Equal(t, []string{"read", "write"}, auth.Scopes.List())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := map[string]struct {
		required []string
		status   int
	}{
		"read":       {[]string{"read"}, http.StatusNoContent},
		"read write": {[]string{"read", "write"}, http.StatusNoContent},
		"admin":      {[]string{"admin"}, http.StatusForbidden},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			validator.Require(tc.required...)(ok).ServeHTTP(rec, bearerRequest(http.MethodGet, "/resource", code))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.status == http.StatusForbidden {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), `scope="admin"`)
				require.Equal(t, "insufficient_scope", decodeChallenge(t, rec).Error)
			}
		})
	}
}

func TestDiscovery(t *testing.T) {
	t.Run("protected resource metadata", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		for _, path := range []string{server.RouteWellKnownProtectedResource, server.RouteMCPWellKnownProtectedResource} {
			rec := f.do(t, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var doc server.ProtectedResourceMetadata
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
			require.Equal(t, "http://localhost:8080", doc.Resource)
			require.Equal(t, []string{"http://localhost:8080"}, doc.AuthorizationServers)
			require.Equal(t, "http://localhost:8080/.well-known/jwks.json", doc.JWKSURI)
			require.Equal(t, []string{"header"}, doc.BearerMethodsSupported)
			require.Equal(t, []string{"read", "write", "admin"}, doc.ScopesSupported)
		}
	})

	t.Run("authorization server metadata", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteWellKnownAuthorizationServer, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var doc server.AuthorizationServerMetadata
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		require.Equal(t, "http://localhost:8080/token", doc.TokenEndpoint)
		require.Equal(t, []string{"S256"}, doc.CodeChallengeMethodsSupported)
	})

	t.Run("jwks publishes the signing key", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteWellKnownJWKS, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var set struct {
			Keys []map[string]any `json:"keys"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
		require.Len(t, set.Keys, 1)
		require.Equal(t, "test-kid", set.Keys[0]["kid"])
		require.Equal(t, "RS256", set.Keys[0]["alg"])
	})

	t.Run("jwks hidden for symmetric signer", func(t *testing.T) {
		f := setupTestFixture(t, func(d *server.Dependencies) {
			d.Signer = token.NewHMACSigner([]byte("0123456789abcdef0123456789abcdef"), "")
		})
		rec := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteWellKnownJWKS, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)

		rec = f.do(t, httptest.NewRequest(http.MethodGet, server.RouteWellKnownProtectedResource, nil))
		require.NotContains(t, rec.Body.String(), "jwks_uri")
	})
}

func TestOperations(t *testing.T) {
	t.Run("metrics", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.do(t, bearerRequest(http.MethodGet, server.RouteMCP, ""))

		rec := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteMetrics, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `resource_auth_token_validations_total{outcome="unauthorized"} 1`)
	})

	t.Run("health with redis attempts", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		f := setupTestFixture(t, func(d *server.Dependencies) {
			d.Attempts = attempts.NewRedisRepo(client, time.Minute)
		})

		rec := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		mr.Close()
		rec = f.do(t, httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		req := httptest.NewRequest(http.MethodOptions, server.RouteMCP, nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		rec := f.do(t, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	})
}
