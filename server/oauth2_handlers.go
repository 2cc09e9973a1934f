package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-oidc-provider/auth"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
)

// WellKnownOpenIDConfig serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, s.discovery.Metadata(s.discovery.IssuerFromRequest(r)))
	}
}

// JWKS returns the JSON Web Key Set used to validate ID tokens
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.discovery.JWKS()
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, jwks)
	}
}

// Authorize validates an authorization request for the signed-in user and
// answers with either a consent prompt or the redirect back to the client.
// Users without a session are sent to the login page.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.principals.VerifySessionRequest(r)
		if errors.Is(err, oautherrors.ErrUnauthorized) {
			http.Redirect(w, r, s.loginRedirectURL(r), http.StatusFound)
			return
		}
		if err != nil {
			s.writeError(w, err)
			return
		}

		result, err := s.auth.Authorize(r.Context(), parseAuthorizationParameters(r.URL.Query()), user)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if result.Consent != nil {
			writeJSON(w, http.StatusOK, result.Consent)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// AuthorizeDecision records the user's approve or deny answer to a consent
// prompt.
func (s *Server) AuthorizeDecision() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "malformed form body", http.StatusBadRequest)
			return
		}
		params := parseAuthorizationParameters(r.PostForm)
		if params.ResponseType == "" {
			params.ResponseType = oauth2.CodeResponseType
		}
		approved, _ := strconv.ParseBool(r.PostFormValue("approved"))

		result, err := s.auth.Decide(r.Context(), params, userFromContext(r.Context()), approved)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// Token exchanges an authorization code or refresh token for tokens. The
// client is already authenticated by RequireClientAuth.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "malformed form body", http.StatusBadRequest)
			return
		}

		params := &auth.TokenParameters{
			GrantType:    oauth2.GrantType(r.PostFormValue("grant_type")),
			Code:         r.PostFormValue("code"),
			RedirectURI:  r.PostFormValue("redirect_uri"),
			CodeVerifier: r.PostFormValue("code_verifier"),
			RefreshToken: r.PostFormValue("refresh_token"),
			Scope:        r.PostFormValue("scope"),
		}

		resp, err := s.auth.Exchange(r.Context(), params, clientFromContext(r.Context()), s.discovery.IssuerFromRequest(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.metrics.TokenIssued(string(params.GrantType))
		writeJSON(w, http.StatusOK, resp)
	}
}

// UserInfo returns the claims the access token's scopes release
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken := accessTokenFromRequest(r)
		if accessToken == "" {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeJSONError(w, oautherrors.CodeInvalidToken, "missing access token", http.StatusUnauthorized)
			return
		}

		claims, err := s.auth.UserInfo(r.Context(), accessToken)
		if err != nil {
			code, _ := oautherrors.OAuthCode(err)
			w.Header().Set("WWW-Authenticate", `Bearer error="`+code+`"`)
			s.writeError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, claims)
	}
}

// Revoke always reports success so callers cannot probe which tokens exist
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "malformed form body", http.StatusBadRequest)
			return
		}
		if tokenValue := r.PostFormValue("token"); tokenValue != "" {
			hint := oauth2.TokenTypeHint(r.PostFormValue("token_type_hint"))
			if _, err := s.auth.Revoke(r.Context(), tokenValue, hint); err != nil {
				log.Error().Err(err).Msg("token revocation failed")
			}
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// Introspect describes a token to an authenticated client (RFC 7662)
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "malformed form body", http.StatusBadRequest)
			return
		}
		tokenValue := r.PostFormValue("token")
		if tokenValue == "" {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "token parameter is required", http.StatusBadRequest)
			return
		}

		result, err := s.auth.Introspect(r.Context(), tokenValue, s.discovery.IssuerFromRequest(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, result)
	}
}

// loginRedirectURL points at the configured login page and carries the
// original authorize request in return_to.
func (s *Server) loginRedirectURL(r *http.Request) string {
	loginURL := s.config.GetLoginURL()
	u, err := url.Parse(loginURL)
	if err != nil {
		return loginURL
	}
	q := u.Query()
	q.Set("return_to", r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}

func parseAuthorizationParameters(values url.Values) *auth.AuthorizationParameters {
	return &auth.AuthorizationParameters{
		ResponseType:        oauth2.ResponseType(values.Get("response_type")),
		ClientID:            values.Get("client_id"),
		RedirectURI:         values.Get("redirect_uri"),
		Scope:               values.Get("scope"),
		State:               values.Get("state"),
		CodeChallenge:       values.Get("code_challenge"),
		CodeChallengeMethod: oauth2.CodeMethodType(values.Get("code_challenge_method")),
		Nonce:               values.Get("nonce"),
	}
}

// accessTokenFromRequest reads the Bearer header, or the access_token form
// field of a POST (RFC 6750 2.2).
func accessTokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(value)
		}
		return ""
	}
	if r.Method == http.MethodPost {
		return r.PostFormValue("access_token")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	body := map[string]string{"error": errorCode}
	if description != "" {
		body["error_description"] = description
	}
	writeJSON(w, statusCode, body)
}

// writeError maps err onto its OAuth error code. Server errors are logged
// and answered without detail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, status := oautherrors.OAuthCode(err)
	s.metrics.OAuthError(code)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		writeJSONError(w, code, "internal error", status)
		return
	}
	log.Debug().Err(err).Str("error_code", code).Msg("request rejected")
	writeJSONError(w, code, errors.Cause(err).Error(), status)
}
