package server

func (s *Server) initRoutes() {
	api := s.APIMiddleware

	// Discovery
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), api()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), api()...))

	// OAuth2 / OIDC
	s.RegisterRouteHandler("GET "+RouteOAuth2Authorize, ChainMiddleware(s.Authorize(), api()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Authorize, ChainMiddleware(s.AuthorizeDecision(), api(s.RateLimitMiddleware, s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.Token(), api(s.RateLimitMiddleware, s.NoStoreMiddleware, s.RequireClientAuth())...))
	s.RegisterRouteHandler("GET "+RouteUserInfo, ChainMiddleware(s.UserInfo(), api()...))
	s.RegisterRouteHandler("POST "+RouteUserInfo, ChainMiddleware(s.UserInfo(), api()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Revoke, ChainMiddleware(s.Revoke(), api(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Introspect, ChainMiddleware(s.Introspect(), api(s.RateLimitMiddleware, s.RequireClientAuth())...))

	// Client management
	s.RegisterRouteHandler("GET "+RouteAPIClients, ChainMiddleware(s.ListClients(), api(s.RequirePrincipal())...))
	s.RegisterRouteHandler("POST "+RouteAPIClients, ChainMiddleware(s.CreateClient(), api(s.RequirePrincipal())...))
	s.RegisterRouteHandler("DELETE "+RouteAPIClient, ChainMiddleware(s.DeleteClient(), api(s.RequirePrincipal())...))

	// Consent self-service
	s.RegisterRouteHandler("GET "+RouteAPIAuthorizedClients, ChainMiddleware(s.AuthorizedClients(), api(s.RequirePrincipal())...))
	s.RegisterRouteHandler("DELETE "+RouteAPIAuthorizedClient, ChainMiddleware(s.RevokeAuthorizedClient(), api(s.RequirePrincipal())...))

	// Operational
	s.RegisterRouteFunc("GET "+RouteHealth, s.Health())
	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
	}

	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.Preflight(), api()...))
	s.RegisterRouteHandler("/", ChainMiddleware(s.NotFound(), api()...))
}
