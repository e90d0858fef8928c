package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog/log"
)

// Headers stamped on forwarded requests.
const (
	HeaderAuthenticatedSubject = "X-Authenticated-Subject"
	HeaderAuthenticatedScopes  = "X-Authenticated-Scopes"
)

// ResourceCaller performs the protected operation on behalf of subjectID.
type ResourceCaller interface {
	Call(ctx context.Context, subjectID string, r *http.Request) (*http.Response, error)
}

// ResourceCallerFunc adapts a function to the ResourceCaller interface.
type ResourceCallerFunc func(ctx context.Context, subjectID string, r *http.Request) (*http.Response, error)

func (f ResourceCallerFunc) Call(ctx context.Context, subjectID string, r *http.Request) (*http.Response, error) {
	return f(ctx, subjectID, r)
}

// hopByHopHeaders apply to a single connection and are dropped in both directions.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// credentialHeaders are never forwarded upstream.
var credentialHeaders = []string{
	"Authorization",
	"Cookie",
	HeaderAuthenticatedSubject,
	HeaderAuthenticatedScopes,
}

// removeHopByHop drops hop-by-hop headers, including any named in Connection.
func removeHopByHop(h http.Header) {
	for _, value := range h.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// UpstreamCaller forwards requests to a fixed upstream base URL. The bearer
// token is replaced by the authenticated subject and scopes.
type UpstreamCaller struct {
	upstream *url.URL
	client   *http.Client
}

// NewUpstreamCaller creates a caller for upstreamURL. A nil client uses http.DefaultClient.
func NewUpstreamCaller(upstreamURL string, client *http.Client) (*UpstreamCaller, error) {
	u, err := url.Parse(upstreamURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("[NewUpstreamCaller] upstream must be an absolute URL: %q", upstreamURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &UpstreamCaller{upstream: u, client: client}, nil
}

func (c *UpstreamCaller) Call(ctx context.Context, subjectID string, r *http.Request) (*http.Response, error) {
	target := *c.upstream
	target.Path = path.Join("/", c.upstream.Path, r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") && !strings.HasSuffix(target.Path, "/") {
		target.Path += "/"
	}
	target.RawPath = ""
	target.RawQuery = r.URL.RawQuery

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("[UpstreamCaller] build request: %w", err)
	}
	out.ContentLength = r.ContentLength
	out.Header = r.Header.Clone()
	removeHopByHop(out.Header)
	for _, h := range credentialHeaders {
		out.Header.Del(h)
	}
	out.Header.Set(HeaderAuthenticatedSubject, subjectID)
	if auth, ok := DecodedAuthFromContext(r.Context()); ok {
		out.Header.Set(HeaderAuthenticatedScopes, auth.Scopes.String())
	}

	resp, err := c.client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("[UpstreamCaller] %s %s: %w", r.Method, target.Redacted(), err)
	}
	return resp, nil
}

// Proxy is the handler mounted behind Validator.Require. It hands the
// authenticated subject to a ResourceCaller and relays the response.
type Proxy struct {
	caller    ResourceCaller
	responder *ChallengeResponder
}

func NewProxy(caller ResourceCaller, responder *ChallengeResponder) *Proxy {
	return &Proxy{caller: caller, responder: responder}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth, ok := DecodedAuthFromContext(r.Context())
	if !ok {
		p.responder.Respond(w, newServerError(errors.New("proxy reached without authentication")))
		return
	}

	resp, err := p.caller.Call(r.Context(), auth.UserID, r)
	if err != nil {
		log.Error().Err(err).Str("sub", auth.UserID).Msg("Protected resource call failed")
		writeJSON(w, http.StatusBadGateway, ChallengeBody{
			Error:            "bad_gateway",
			ErrorDescription: "The protected resource is unavailable",
		})
		return
	}
	defer resp.Body.Close()

	header := resp.Header.Clone()
	removeHopByHop(header)
	for key, values := range header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Warn().Err(err).Msg("Failed to relay protected resource response")
	}
}

// WhoAmI answers protected routes when no upstream is configured. It reports
// the authenticated principal.
func WhoAmI() ResourceCaller {
	return ResourceCallerFunc(func(ctx context.Context, subjectID string, r *http.Request) (*http.Response, error) {
		body := map[string]any{
			"sub":    subjectID,
			"method": r.Method,
			"path":   r.URL.Path,
		}
		if auth, ok := DecodedAuthFromContext(ctx); ok && auth.Decoded != nil {
			body["scopes"] = auth.Scopes.List()
			body["client_id"] = auth.Decoded.ClientID
			if auth.Decoded.ExpiresAt != nil {
				body["expires_at"] = auth.Decoded.ExpiresAt.Unix()
			}
		}
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		return &http.Response{
			StatusCode:    http.StatusOK,
			Header:        http.Header{"Content-Type": {"application/json"}},
			Body:          io.NopCloser(strings.NewReader(string(data))),
			ContentLength: int64(len(data)),
			Request:       r,
		}, nil
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
