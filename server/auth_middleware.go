package server

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-oidc-provider/clients"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUser stores the authenticated resource owner
	ContextKeyUser ContextKey = "user"
	// ContextKeyClient stores the authenticated OAuth client
	ContextKeyClient ContextKey = "client"
)

func userFromContext(ctx context.Context) *users.User {
	u, _ := ctx.Value(ContextKeyUser).(*users.User)
	return u
}

func clientFromContext(ctx context.Context) *clients.Client {
	c, _ := ctx.Value(ContextKeyClient).(*clients.Client)
	return c
}

// RequirePrincipal resolves the resource owner from a session token or an
// access token carrying the management scope, and rejects the request when
// none is present.
func (s *Server) RequirePrincipal() func(http.HandlerFunc) http.HandlerFunc {
	return s.requireUser(s.principals.VerifyRequest)
}

// RequireSession is RequirePrincipal accepting session tokens only.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return s.requireUser(s.principals.VerifySessionRequest)
}

func (s *Server) requireUser(verify func(*http.Request) (*users.User, error)) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user, err := verify(r)
			if err != nil {
				s.writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireClientAuth authenticates the calling client with HTTP Basic
// credentials, falling back to client_id and client_secret in the body.
func (s *Server) RequireClientAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			clientID, clientSecret, ok := basicClientCredentials(r)
			if !ok {
				if err := r.ParseForm(); err != nil {
					writeJSONError(w, oautherrors.CodeInvalidRequest, "malformed form body", http.StatusBadRequest)
					return
				}
				clientID = r.PostFormValue("client_id")
				clientSecret = r.PostFormValue("client_secret")
			}

			client, err := s.clients.VerifyCredentials(r.Context(), clientID, clientSecret)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
				s.writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClient, client)
			next(w, r.WithContext(ctx))
		}
	}
}

// basicClientCredentials decodes Basic credentials, which RFC 6749 2.3.1
// form-urlencodes before base64.
func basicClientCredentials(r *http.Request) (string, string, bool) {
	rawID, rawSecret, ok := r.BasicAuth()
	if !ok {
		return "", "", false
	}
	clientID, err := url.QueryUnescape(rawID)
	if err != nil {
		return "", "", false
	}
	clientSecret, err := url.QueryUnescape(rawSecret)
	if err != nil {
		return "", "", false
	}
	return clientID, clientSecret, true
}
