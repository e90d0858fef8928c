package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// Authorization flow
	s.RegisterRouteHandler("POST "+RouteAuthorizeComplete, ChainMiddleware(s.CompleteAuthorizationHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.TokenHandler(), s.APIMiddleware()...))

	// Discovery
	s.RegisterRouteHandler("GET "+RouteWellKnownProtectedResource, ChainMiddleware(s.ProtectedResourceMetadataHandler(), s.DiscoveryMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteMCPWellKnownProtectedResource, ChainMiddleware(s.ProtectedResourceMetadataHandler(), s.DiscoveryMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownAuthorizationServer, ChainMiddleware(s.AuthorizationServerMetadataHandler(), s.DiscoveryMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKSHandler(), s.DiscoveryMiddleware()...))

	// Operations
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// Protected resources
	s.RegisterRouteHandler(RouteMCP, ChainMiddleware(s.protected, s.APIMiddleware(s.validator.Require(ScopeRead))...))
	s.RegisterRouteHandler(RouteAPI, ChainMiddleware(s.scopedByMethod(ScopeRead, ScopeWrite), s.APIMiddleware()...))
	s.RegisterRouteHandler(RouteAPIAdmin, ChainMiddleware(s.protected, s.APIMiddleware(s.validator.Require(ScopeAdmin))...))
	s.RegisterRouteHandler(RouteAPIAdminPaths, ChainMiddleware(s.protected, s.APIMiddleware(s.validator.Require(ScopeAdmin))...))
}

// scopedByMethod guards the protected handler with readScope for safe methods
// and writeScope for everything else.
func (s *Server) scopedByMethod(readScope, writeScope string) http.Handler {
	read := s.validator.Require(readScope)(s.protected)
	write := s.validator.Require(writeScope)(s.protected)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			read.ServeHTTP(w, r)
		default:
			write.ServeHTTP(w, r)
		}
	})
}
