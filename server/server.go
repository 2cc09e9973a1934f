package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-oidc-provider/auth"
	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/discovery"
	"github.com/jrsteele09/go-oidc-provider/internal/config"
	"github.com/jrsteele09/go-oidc-provider/internal/metrics"
)

// Dependencies are the services the HTTP layer dispatches to. Metrics and
// Health are optional.
type Dependencies struct {
	Config     config.Config
	Auth       *auth.AuthorizationService
	Principals *auth.PrincipalVerifier
	Clients    *clients.Registry
	Discovery  *discovery.Service
	Metrics    *metrics.Metrics
	Health     func(ctx context.Context) error
}

type Server struct {
	env        string // Environment (e.g. "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	auth       *auth.AuthorizationService
	principals *auth.PrincipalVerifier
	clients    *clients.Registry
	discovery  *discovery.Service
	metrics    *metrics.Metrics
	health     func(ctx context.Context) error
	limiter    *ipRateLimiter
}

func New(deps Dependencies) (*Server, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("[Server New] config is required")
	case deps.Auth == nil:
		return nil, errors.New("[Server New] authorization service is required")
	case deps.Principals == nil:
		return nil, errors.New("[Server New] principal verifier is required")
	case deps.Clients == nil:
		return nil, errors.New("[Server New] client registry is required")
	case deps.Discovery == nil:
		return nil, errors.New("[Server New] discovery service is required")
	}

	s := &Server{
		env:        deps.Config.GetEnv(),
		mux:        http.NewServeMux(),
		config:     deps.Config,
		auth:       deps.Auth,
		principals: deps.Principals,
		clients:    deps.Clients,
		discovery:  deps.Discovery,
		metrics:    deps.Metrics,
		health:     deps.Health,
	}
	if deps.Config.GetEnableRateLimiting() {
		rps, burst := deps.Config.GetRateLimit()
		s.limiter = newIPRateLimiter(rps, burst)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

// DiscoveryPaths are the endpoint paths this server advertises.
func DiscoveryPaths() discovery.Paths {
	return discovery.Paths{
		Authorization: RouteOAuth2Authorize,
		Token:         RouteOAuth2Token,
		UserInfo:      RouteUserInfo,
		JWKS:          RouteWellKnownJWKS,
		Revocation:    RouteOAuth2Revoke,
		Introspection: RouteOAuth2Introspect,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colouredMethod(method), path)
}
