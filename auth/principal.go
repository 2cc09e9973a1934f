package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/token"
	"github.com/jrsteele09/go-oidc-provider/users"
)

// SessionCookieName is the cookie the surrounding application stores its
// session token in.
const SessionCookieName = "session"

// strategy resolves a bearer value to a user id. ok is false when the
// value is not meant for this strategy, so the next one may try it.
type strategy interface {
	resolve(ctx context.Context, bearer string) (userID string, ok bool)
	name() string
}

// sessionStrategy accepts HS256 session JWTs signed with the secret shared
// with the application that logs users in.
type sessionStrategy struct {
	secret  []byte
	nowFunc func() time.Time
}

func (s sessionStrategy) name() string { return "session" }

func (s sessionStrategy) resolve(_ context.Context, bearer string) (string, bool) {
	if strings.Count(bearer, ".") != 2 {
		return "", false
	}
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(bearer, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowFunc),
	)
	if err != nil || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// accessTokenStrategy accepts opaque access tokens issued by this server
// that carry requiredScope.
type accessTokenStrategy struct {
	tokens        *token.Service
	requiredScope string
}

func (s accessTokenStrategy) name() string { return "access_token" }

func (s accessTokenStrategy) resolve(ctx context.Context, bearer string) (string, bool) {
	at, err := s.tokens.VerifyAccessToken(ctx, bearer)
	if err != nil || !oauth2.Contains(at.Scopes, s.requiredScope) {
		return "", false
	}
	return at.UserID, true
}

// PrincipalVerifier identifies the resource owner behind a request. The
// session strategy is tried before the access token strategy. Access
// tokens are only accepted when they carry oauth2.ScopeManage.
type PrincipalVerifier struct {
	users      users.Repo
	session    []strategy
	strategies []strategy
}

type PrincipalVerifierOption func(*principalConfig)

type principalConfig struct {
	nowFunc func() time.Time
}

func WithPrincipalNowFunc(now func() time.Time) PrincipalVerifierOption {
	return func(c *principalConfig) {
		c.nowFunc = now
	}
}

// NewPrincipalVerifier builds a verifier. An empty sessionSecret disables
// session tokens and a nil token service disables access tokens.
func NewPrincipalVerifier(userRepo users.Repo, sessionSecret []byte, tokens *token.Service, options ...PrincipalVerifierOption) *PrincipalVerifier {
	cfg := principalConfig{nowFunc: time.Now}
	for _, opt := range options {
		opt(&cfg)
	}
	v := &PrincipalVerifier{users: userRepo}
	if len(sessionSecret) > 0 {
		v.session = []strategy{sessionStrategy{secret: sessionSecret, nowFunc: cfg.nowFunc}}
	}
	v.strategies = append(v.strategies, v.session...)
	if tokens != nil {
		v.strategies = append(v.strategies, accessTokenStrategy{tokens: tokens, requiredScope: oauth2.ScopeManage})
	}
	return v
}

// Verify resolves bearer to an active user. Unrecognised bearers are
// ErrUnauthorized; a known but disabled user is ErrUserInactive.
func (v *PrincipalVerifier) Verify(ctx context.Context, bearer string) (*users.User, error) {
	return v.verify(ctx, bearer, v.strategies)
}

// VerifySession is Verify restricted to session tokens.
func (v *PrincipalVerifier) VerifySession(ctx context.Context, bearer string) (*users.User, error) {
	return v.verify(ctx, bearer, v.session)
}

func (v *PrincipalVerifier) verify(ctx context.Context, bearer string, strategies []strategy) (*users.User, error) {
	if bearer == "" {
		return nil, oautherrors.ErrUnauthorized
	}
	for _, s := range strategies {
		userID, ok := s.resolve(ctx, bearer)
		if !ok {
			continue
		}
		user, err := v.users.GetByID(ctx, userID)
		if errors.Is(err, oautherrors.ErrUserNotFound) {
			return nil, errors.Wrapf(oautherrors.ErrUnauthorized, "[Verify] %s names an unknown user", s.name())
		}
		if err != nil {
			return nil, errors.Wrap(err, "[Verify] loading user")
		}
		if !user.IsActive {
			return nil, oautherrors.ErrUserInactive
		}
		return user, nil
	}
	return nil, oautherrors.ErrUnauthorized
}

// VerifyRequest reads the bearer from the Authorization header, falling
// back to the session cookie.
func (v *PrincipalVerifier) VerifyRequest(r *http.Request) (*users.User, error) {
	return v.Verify(r.Context(), BearerFromRequest(r))
}

// VerifySessionRequest is VerifyRequest accepting session tokens only.
func (v *PrincipalVerifier) VerifySessionRequest(r *http.Request) (*users.User, error) {
	return v.VerifySession(r.Context(), BearerFromRequest(r))
}

// BearerFromRequest extracts "Authorization: Bearer <value>" or the session
// cookie value.
func BearerFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(value)
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// NewSessionToken mints a session JWT the way the login application does.
func NewSessionToken(secret []byte, userID string, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "[NewSessionToken]")
	}
	return signed, nil
}
