package discovery

import (
	"net"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/token/keys"
)

// Paths are the endpoint paths advertised relative to the issuer.
type Paths struct {
	Authorization string
	Token         string
	UserInfo      string
	JWKS          string
	Revocation    string
	Introspection string
}

// Metadata is the OpenID Provider configuration document.
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ResponseModesSupported            []string `json:"response_modes_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

// Service builds discovery documents. The issuer is derived per request
// unless an override is configured.
type Service struct {
	signer         keys.Signer
	paths          Paths
	scopes         []string
	issuerOverride string
}

type ServiceOption func(*Service)

// WithIssuer pins the issuer instead of deriving it from requests.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) {
		s.issuerOverride = strings.TrimSuffix(issuer, "/")
	}
}

func WithScopes(scopes []string) ServiceOption {
	return func(s *Service) {
		if len(scopes) > 0 {
			s.scopes = scopes
		}
	}
}

func NewService(signer keys.Signer, paths Paths, options ...ServiceOption) *Service {
	s := &Service{
		signer: signer,
		paths:  paths,
		scopes: []string{oauth2.ScopeOpenID, oauth2.ScopeProfile, oauth2.ScopeEmail, oauth2.ScopeOfflineAccess},
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Service) Metadata(issuer string) Metadata {
	return Metadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + s.paths.Authorization,
		TokenEndpoint:                     issuer + s.paths.Token,
		UserInfoEndpoint:                  issuer + s.paths.UserInfo,
		JWKSURI:                           issuer + s.paths.JWKS,
		RevocationEndpoint:                issuer + s.paths.Revocation,
		IntrospectionEndpoint:             issuer + s.paths.Introspection,
		ResponseTypesSupported:            []string{string(oauth2.CodeResponseType)},
		ResponseModesSupported:            []string{"query"},
		GrantTypesSupported:               []string{string(oauth2.AuthorizationCodeGrant), string(oauth2.RefreshTokenGrant)},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{keys.RS256},
		ScopesSupported:                   s.scopes,
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
		CodeChallengeMethodsSupported:     []string{string(oauth2.CodeMethodTypeS256), string(oauth2.CodeMethodTypePlain)},
		ClaimsSupported:                   []string{"sub", "iss", "aud", "exp", "iat", "nonce", "name", "preferred_username", "email", "email_verified"},
	}
}

func (s *Service) JWKS() (*keys.JWKS, error) {
	if s.signer == nil {
		return nil, errors.ErrSigningKeyUnavailable
	}
	return s.signer.GetJWKS()
}

// IssuerFromRequest returns the configured issuer, or derives one from the
// request. Loopback hosts are always http and ignore X-Forwarded-Proto;
// other hosts trust X-Forwarded-Proto and default to https.
func (s *Service) IssuerFromRequest(r *http.Request) string {
	if s.issuerOverride != "" {
		return s.issuerOverride
	}
	return schemeFor(r) + "://" + r.Host
}

func schemeFor(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if isLoopback(r.Host) {
		return "http"
	}
	switch proto := strings.ToLower(strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0])); proto {
	case "http", "https":
		return proto
	}
	return "https"
}

func isLoopback(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.Trim(strings.ToLower(host), "[]")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
