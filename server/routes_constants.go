package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// OAuth2 / OIDC Routes
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
	RouteOAuth2Authorize       = "/oauth/authorize"
	RouteOAuth2Token           = "/oauth/token"
	RouteOAuth2Introspect      = "/oauth/introspect"
	RouteOAuth2Revoke          = "/oauth/revoke"
	RouteUserInfo              = "/oauth/userinfo"

	// Client management
	RouteAPIClients = "/api/oauth/clients"
	RouteAPIClient  = "/api/oauth/clients/{id}"

	// Consent self-service
	RouteAPIAuthorizedClients = "/api/oauth/authorized-clients"
	RouteAPIAuthorizedClient  = "/api/oauth/authorized-clients/{clientId}"

	// Operational
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
