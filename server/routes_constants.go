package server

// Route path constants
const (
	// Authorization flow
	RouteAuthorizeComplete = "/authorize/complete"
	RouteToken             = "/token"

	// Discovery
	RouteWellKnownProtectedResource    = "/.well-known/oauth-protected-resource"
	RouteMCPWellKnownProtectedResource = "/mcp/.well-known/oauth-protected-resource"
	RouteWellKnownAuthorizationServer  = "/.well-known/oauth-authorization-server"
	RouteWellKnownJWKS                 = "/.well-known/jwks.json"

	// Operations
	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"

	// Protected resources
	RouteMCP           = "/mcp"
	RouteAPI           = "/api/*"
	RouteAPIAdmin      = "/api/admin"
	RouteAPIAdminPaths = "/api/admin/*"
)

// Scopes guarding the protected routes.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)
