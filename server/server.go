package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-resource-auth/auth"
	"github.com/jrsteele09/go-resource-auth/auth/attempts"
	"github.com/jrsteele09/go-resource-auth/identity"
	"github.com/jrsteele09/go-resource-auth/internal/config"
	"github.com/jrsteele09/go-resource-auth/internal/metrics"
	"github.com/jrsteele09/go-resource-auth/resource"
	"github.com/jrsteele09/go-resource-auth/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Dependencies are the collaborators built outside the server.
// Verifier and Signer are required; the rest have defaults.
type Dependencies struct {
	Verifier       identity.Verifier
	Signer         token.Signer
	Attempts       attempts.Repo          // default: in-memory store
	Registry       *prometheus.Registry   // default: a fresh registry
	ResourceCaller resource.ResourceCaller // default: resource.WhoAmI
	NowFunc        func() time.Time
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	env       string
	router    chi.Router
	routes    []string
	config    config.Config
	auth      *auth.AuthorizationService
	validator *resource.Validator
	signer    token.Signer
	protected http.Handler
	registry  *prometheus.Registry
	attempts  attempts.Repo
}

func New(cfg config.Config, deps Dependencies) (*Server, error) {
	if deps.Verifier == nil {
		return nil, fmt.Errorf("[Server New] identity verifier is required")
	}
	if deps.Signer == nil {
		return nil, fmt.Errorf("[Server New] token signer is required")
	}
	if deps.Attempts == nil {
		deps.Attempts = attempts.NewInMemoryRepo(cfg.GetAttemptTTL())
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if deps.ResourceCaller == nil {
		deps.ResourceCaller = resource.WhoAmI()
	}
	if deps.NowFunc == nil {
		deps.NowFunc = time.Now
	}

	m := metrics.New(deps.Registry)
	creator := token.NewCreator(deps.Signer, cfg.GetIssuer(), cfg.GetAudience(), cfg.GetAccessTokenExpiry(),
		token.WithCreatorNowFunc(deps.NowFunc))
	inspector := token.NewInspector(deps.Signer, cfg.GetIssuer(), cfg.GetAudience(),
		token.WithInspectorNowFunc(deps.NowFunc))

	authService, err := auth.NewAuthorizationService(deps.Verifier, creator, inspector, deps.Attempts,
		auth.WithDefaultScope(cfg.GetDefaultScope()),
		auth.WithSupportedScopes(cfg.GetSupportedScopes()...),
		auth.WithMetrics(m),
		auth.WithNowTime(deps.NowFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create authorization service: %w", err)
	}

	responder := resource.NewChallengeResponder(cfg.GetResourceMetadataURL())
	s := &Server{
		env:       cfg.GetEnv(),
		router:    chi.NewRouter(),
		config:    cfg,
		auth:      authService,
		validator: resource.NewValidator(inspector, responder, resource.WithMetrics(m)),
		signer:    deps.Signer,
		protected: resource.NewProxy(deps.ResourceCaller, responder),
		registry:  deps.Registry,
		attempts:  deps.Attempts,
	}

	s.router.Use(middleware.RequestID, s.LoggingMiddleware, middleware.Recoverer, s.CorsMiddleware)
	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RegisterRouteHandler registers handler for pattern, either "METHOD /path" or "/path" for all methods.
func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		s.router.Handle(pattern, handler)
		return
	}
	s.router.Method(method, path, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.RegisterRouteHandler(pattern, http.HandlerFunc(handler))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path, ok := strings.Cut(route, " ")
		if !ok {
			method, path = "*", route
		}
		log.Debug().Str("method", method).Str("path", path).Msg("Route registered")
	}
}
