package auth

import (
	"context"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-oidc-provider/authcode"
	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/codec"
	"github.com/jrsteele09/go-oidc-provider/consent"
	"github.com/jrsteele09/go-oidc-provider/events"
	"github.com/jrsteele09/go-oidc-provider/idtoken"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/token"
	"github.com/jrsteele09/go-oidc-provider/users"
)

// Dependencies holds the collaborators of the AuthorizationService.
type Dependencies struct {
	Users    users.Repo
	Clients  *clients.Registry
	Consents *consent.Store
	Codes    *authcode.Manager
	Tokens   *token.Service
	IDTokens *idtoken.Issuer
}

// AuthorizationService runs the authorization code flow and the client and
// consent management operations on top of the individual components.
type AuthorizationService struct {
	deps        Dependencies
	publisher   events.Publisher
	requirePKCE bool
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithRequirePKCE rejects authorization requests without a code_challenge.
func WithRequirePKCE(required bool) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.requirePKCE = required
	}
}

func WithPublisher(p events.Publisher) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.publisher = p
	}
}

func NewAuthorizationService(deps Dependencies, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	switch {
	case deps.Users == nil:
		return nil, errors.New("[NewAuthorizationService] Users repo is required")
	case deps.Clients == nil:
		return nil, errors.New("[NewAuthorizationService] client registry is required")
	case deps.Consents == nil:
		return nil, errors.New("[NewAuthorizationService] consent store is required")
	case deps.Codes == nil:
		return nil, errors.New("[NewAuthorizationService] code manager is required")
	case deps.Tokens == nil:
		return nil, errors.New("[NewAuthorizationService] token service is required")
	case deps.IDTokens == nil:
		return nil, errors.New("[NewAuthorizationService] ID token issuer is required")
	}
	as := &AuthorizationService{
		deps:      deps,
		publisher: events.LogPublisher{},
	}
	for _, opt := range options {
		opt(as)
	}
	return as, nil
}

type validatedRequest struct {
	client *clients.Client
	scopes []string
	method oauth2.CodeMethodType
}

// validate checks an authorization request against the registered client.
// Every failure here is reported to the caller rather than redirected,
// because the redirect URI cannot be trusted until it has been matched.
func (as *AuthorizationService) validate(ctx context.Context, p *AuthorizationParameters) (*validatedRequest, error) {
	if p.ResponseType != oauth2.CodeResponseType {
		return nil, errors.Wrapf(oautherrors.ErrUnsupportedResponseType, "response_type %q", p.ResponseType)
	}
	if p.ClientID == "" {
		return nil, errors.Wrap(oautherrors.ErrInvalidRequest, "client_id is required")
	}
	client, err := as.deps.Clients.GetByClientID(ctx, p.ClientID)
	if errors.Is(err, oautherrors.ErrNotFound) {
		return nil, errors.Wrap(oautherrors.ErrInvalidClient, "unknown client_id")
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading client")
	}
	if p.RedirectURI == "" || !as.deps.Clients.ValidateRedirectURI(client, p.RedirectURI) {
		return nil, errors.Wrap(oautherrors.ErrInvalidRedirectURI, "redirect_uri is not registered for this client")
	}
	scopes, err := as.deps.Clients.ResolveScopes(client, oauth2.ParseScopes(p.Scope))
	if err != nil {
		return nil, errors.Wrap(err, "scope is not allowed for this client")
	}

	method := p.CodeChallengeMethod
	switch {
	case p.CodeChallenge == "" && method != "":
		return nil, errors.Wrap(oautherrors.ErrInvalidRequest, "code_challenge_method without code_challenge")
	case p.CodeChallenge == "" && as.requirePKCE:
		return nil, errors.Wrap(oautherrors.ErrInvalidRequest, "code_challenge is required")
	case p.CodeChallenge != "":
		if method == "" {
			method = oauth2.CodeMethodTypePlain
		}
		if !method.Valid() {
			return nil, errors.Wrapf(oautherrors.ErrInvalidRequest, "unsupported code_challenge_method %q", method)
		}
		if !codec.ValidVerifier(p.CodeChallenge) {
			return nil, errors.Wrap(oautherrors.ErrInvalidRequest, "malformed code_challenge")
		}
	}
	return &validatedRequest{client: client, scopes: scopes, method: method}, nil
}

func checkUser(user *users.User) error {
	if user == nil {
		return oautherrors.ErrUnauthorized
	}
	if !user.IsActive {
		return oautherrors.ErrUserInactive
	}
	return nil
}

// Authorize handles GET /oauth/authorize for an authenticated user. It
// returns a redirect carrying a fresh code when the client is trusted or
// existing consent covers the request, and a consent prompt otherwise.
func (as *AuthorizationService) Authorize(ctx context.Context, p *AuthorizationParameters, user *users.User) (*AuthorizeResult, error) {
	req, err := as.validate(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "[Authorize]")
	}
	if err := checkUser(user); err != nil {
		return nil, errors.Wrap(err, "[Authorize]")
	}

	if !req.client.IsTrusted {
		existing, err := as.deps.Consents.Get(ctx, user.ID, req.client.ClientID)
		if err != nil {
			return nil, errors.Wrap(err, "[Authorize] loading consent")
		}
		if !as.deps.Consents.Covers(existing, req.scopes) {
			return &AuthorizeResult{Consent: &ConsentPrompt{
				NeedsConsent: true,
				Client: ClientSummary{
					Name:        req.client.Name,
					Description: req.client.Description,
					LogoURL:     req.client.LogoURL,
					WebsiteURL:  req.client.WebsiteURL,
				},
				Scopes:      req.scopes,
				State:       p.State,
				RedirectURI: p.RedirectURI,
			}}, nil
		}
	}

	redirectURL, err := as.issueCodeRedirect(ctx, p, req, user)
	if err != nil {
		return nil, errors.Wrap(err, "[Authorize]")
	}
	return &AuthorizeResult{RedirectURL: redirectURL}, nil
}

// Decide handles POST /oauth/authorize: the user's answer to a consent
// prompt. A denial redirects with error=access_denied.
func (as *AuthorizationService) Decide(ctx context.Context, p *AuthorizationParameters, user *users.User, approved bool) (*AuthorizeResult, error) {
	req, err := as.validate(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "[Decide]")
	}
	if err := checkUser(user); err != nil {
		return nil, errors.Wrap(err, "[Decide]")
	}

	if !approved {
		values := url.Values{"error": {oautherrors.CodeAccessDenied}}
		if p.State != "" {
			values.Set("state", p.State)
		}
		redirectURL, err := appendQuery(p.RedirectURI, values)
		if err != nil {
			return nil, errors.Wrap(err, "[Decide]")
		}
		return &AuthorizeResult{RedirectURL: redirectURL}, nil
	}

	if _, err := as.deps.Consents.Upsert(ctx, user.ID, req.client.ClientID, req.scopes); err != nil {
		return nil, errors.Wrap(err, "[Decide] storing consent")
	}
	events.Emit(ctx, as.publisher, events.New(events.ConsentGranted, req.client.ClientID, user.ID).
		With("scope", oauth2.JoinScopes(req.scopes)))

	redirectURL, err := as.issueCodeRedirect(ctx, p, req, user)
	if err != nil {
		return nil, errors.Wrap(err, "[Decide]")
	}
	return &AuthorizeResult{RedirectURL: redirectURL}, nil
}

func (as *AuthorizationService) issueCodeRedirect(ctx context.Context, p *AuthorizationParameters, req *validatedRequest, user *users.User) (string, error) {
	code, err := as.deps.Codes.Issue(ctx, authcode.IssueRequest{
		ClientID:            req.client.ClientID,
		UserID:              user.ID,
		RedirectURI:         p.RedirectURI,
		Scopes:              req.scopes,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: req.method,
		Nonce:               p.Nonce,
	})
	if err != nil {
		return "", errors.Wrap(err, "issuing code")
	}
	values := url.Values{"code": {code}}
	if p.State != "" {
		values.Set("state", p.State)
	}
	return appendQuery(p.RedirectURI, values)
}

// appendQuery adds values to the query of a registered redirect URI,
// keeping any query it already carries.
func appendQuery(redirectURI string, values url.Values) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", errors.Wrap(oautherrors.ErrInvalidRedirectURI, err.Error())
	}
	q := u.Query()
	for k, vs := range values {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Exchange handles POST /oauth/token for an authenticated client.
func (as *AuthorizationService) Exchange(ctx context.Context, p *TokenParameters, client *clients.Client, issuer string) (*oauth2.TokenResponse, error) {
	switch p.GrantType {
	case oauth2.AuthorizationCodeGrant:
		return as.exchangeCode(ctx, p, client, issuer)
	case oauth2.RefreshTokenGrant:
		return as.exchangeRefresh(ctx, p, client)
	case "":
		return nil, errors.Wrap(oautherrors.ErrInvalidRequest, "[Exchange] grant_type is required")
	default:
		return nil, errors.Wrapf(oautherrors.ErrUnsupportedGrantType, "[Exchange] grant_type %q", p.GrantType)
	}
}

func (as *AuthorizationService) exchangeCode(ctx context.Context, p *TokenParameters, client *clients.Client, issuer string) (*oauth2.TokenResponse, error) {
	if p.Code == "" {
		return nil, errors.Wrap(oautherrors.ErrInvalidRequest, "[Exchange] code is required")
	}
	record, err := as.deps.Codes.VerifyAndConsume(ctx, p.Code, client.ClientID, p.RedirectURI, p.CodeVerifier)
	if err != nil {
		return nil, errors.Wrap(err, "[Exchange]")
	}
	user, err := as.activeUser(ctx, record.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[Exchange]")
	}

	// The ID token is signed before anything is persisted so a signing
	// failure leaves no orphaned tokens behind.
	var idToken *string
	if oauth2.Contains(record.Scopes, oauth2.ScopeOpenID) {
		signed, err := as.deps.IDTokens.Issue(idtoken.Request{
			Issuer:   issuer,
			ClientID: client.ClientID,
			User:     user,
			Scopes:   record.Scopes,
			Nonce:    record.Nonce,
		})
		if err != nil {
			return nil, errors.Wrap(err, "[Exchange] signing ID token")
		}
		idToken = &signed
	}

	issued, err := as.deps.Tokens.IssueAccessToken(ctx, client.ClientID, user.ID, record.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[Exchange]")
	}
	response := &oauth2.TokenResponse{
		AccessToken: issued.Token,
		TokenType:   oauth2.BearerTokenType,
		ExpiresIn:   issued.ExpiresIn,
		IdToken:     idToken,
		Scope:       oauth2.JoinScopes(issued.Scopes),
	}

	refresh, err := as.deps.Tokens.IssueRefreshToken(ctx, issued.ID, client.ClientID, user.ID, record.Scopes)
	if err != nil {
		log.Warn().Err(err).Str("client_id", client.ClientID).Msg("refresh token not persisted, returning access token only")
		return response, nil
	}
	response.RefreshToken = &refresh
	return response, nil
}

func (as *AuthorizationService) exchangeRefresh(ctx context.Context, p *TokenParameters, client *clients.Client) (*oauth2.TokenResponse, error) {
	if p.RefreshToken == "" {
		return nil, errors.Wrap(oautherrors.ErrInvalidRequest, "[Exchange] refresh_token is required")
	}
	result, err := as.deps.Tokens.Refresh(ctx, p.RefreshToken, client.ClientID, oauth2.ParseScopes(p.Scope))
	if err != nil {
		return nil, errors.Wrap(err, "[Exchange]")
	}
	if _, err := as.activeUser(ctx, result.UserID); err != nil {
		if _, revokeErr := as.deps.Tokens.Revoke(ctx, result.AccessToken.Token, oauth2.AccessTokenHint); revokeErr != nil {
			log.Error().Err(revokeErr).Msg("failed to revoke access token issued to an inactive user")
		}
		if result.RefreshToken != "" {
			if _, revokeErr := as.deps.Tokens.Revoke(ctx, result.RefreshToken, oauth2.RefreshTokenHint); revokeErr != nil {
				log.Error().Err(revokeErr).Msg("failed to revoke refresh token issued to an inactive user")
			}
		}
		return nil, errors.Wrap(err, "[Exchange]")
	}

	response := &oauth2.TokenResponse{
		AccessToken: result.AccessToken.Token,
		TokenType:   oauth2.BearerTokenType,
		ExpiresIn:   result.AccessToken.ExpiresIn,
		Scope:       oauth2.JoinScopes(result.AccessToken.Scopes),
	}
	if result.RefreshToken != "" {
		response.RefreshToken = &result.RefreshToken
	}
	return response, nil
}

// activeUser maps a missing or disabled user onto invalid_grant.
func (as *AuthorizationService) activeUser(ctx context.Context, userID string) (*users.User, error) {
	user, err := as.deps.Users.GetByID(ctx, userID)
	if errors.Is(err, oautherrors.ErrUserNotFound) || errors.Is(err, oautherrors.ErrNotFound) {
		return nil, errors.Wrap(oautherrors.ErrInvalidGrant, "user no longer exists")
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading user")
	}
	if !user.IsActive {
		return nil, errors.Wrap(oautherrors.ErrInvalidGrant, "user is inactive")
	}
	return user, nil
}

// UserInfo returns the claims released by the token's scopes.
func (as *AuthorizationService) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	at, err := as.deps.Tokens.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[UserInfo]")
	}
	if !oauth2.Contains(at.Scopes, oauth2.ScopeOpenID) {
		return nil, errors.Wrap(oautherrors.ErrInsufficientScope, "[UserInfo] openid scope required")
	}
	user, err := as.deps.Users.GetByID(ctx, at.UserID)
	if errors.Is(err, oautherrors.ErrUserNotFound) {
		return nil, errors.Wrap(oautherrors.ErrInvalidToken, "[UserInfo] user no longer exists")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[UserInfo] loading user")
	}
	if !user.IsActive {
		return nil, errors.Wrap(oautherrors.ErrInvalidToken, "[UserInfo] user is inactive")
	}
	return idtoken.UserClaims(user, at.Scopes), nil
}

// Revoke revokes a token and reports whether it was known.
func (as *AuthorizationService) Revoke(ctx context.Context, tokenValue string, hint oauth2.TokenTypeHint) (bool, error) {
	found, err := as.deps.Tokens.Revoke(ctx, tokenValue, hint)
	if err != nil {
		return false, errors.Wrap(err, "[Revoke]")
	}
	if found {
		events.Emit(ctx, as.publisher, events.New(events.TokenRevoked, "", "").With("token_type_hint", string(hint)))
	}
	return found, nil
}

// Introspect describes a token for an authenticated client.
func (as *AuthorizationService) Introspect(ctx context.Context, tokenValue, issuer string) (*token.Introspection, error) {
	result, err := as.deps.Tokens.Introspect(ctx, tokenValue)
	if err != nil {
		return nil, errors.Wrap(err, "[Introspect]")
	}
	if result.Active {
		result.Iss = issuer
	}
	return result, nil
}

// RegisterClient creates a client owned by the requester.
func (as *AuthorizationService) RegisterClient(ctx context.Context, reg clients.Registration, owner *users.User) (*clients.Client, string, error) {
	client, secret, err := as.deps.Clients.Register(ctx, reg, owner)
	if err != nil {
		return nil, "", errors.Wrap(err, "[RegisterClient]")
	}
	events.Emit(ctx, as.publisher, events.New(events.ClientRegistered, client.ClientID, owner.ID).
		With("name", client.Name).
		With("trusted", client.IsTrusted))
	return client, secret, nil
}

func (as *AuthorizationService) ListClients(ctx context.Context, requester *users.User, offset, limit int) ([]*clients.Client, error) {
	return as.deps.Clients.List(ctx, requester, offset, limit)
}

// DeleteClient removes a client together with its consents and tokens.
func (as *AuthorizationService) DeleteClient(ctx context.Context, requester *users.User, clientID string) error {
	client, err := as.deps.Clients.Delete(ctx, requester, clientID)
	if err != nil {
		return errors.Wrap(err, "[DeleteClient]")
	}
	if err := as.deps.Consents.DeleteForClient(ctx, client.ClientID); err != nil {
		return errors.Wrap(err, "[DeleteClient] deleting consents")
	}
	if err := as.deps.Tokens.RevokeForClient(ctx, client.ClientID, ""); err != nil {
		return errors.Wrap(err, "[DeleteClient] revoking tokens")
	}
	events.Emit(ctx, as.publisher, events.New(events.ClientDeleted, client.ClientID, requester.ID))
	return nil
}

// AuthorizedClients lists the clients the user has consented to.
func (as *AuthorizationService) AuthorizedClients(ctx context.Context, user *users.User) ([]AuthorizedClient, error) {
	if user == nil {
		return nil, oautherrors.ErrUnauthorized
	}
	consents, err := as.deps.Consents.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizedClients]")
	}
	out := make([]AuthorizedClient, 0, len(consents))
	for _, c := range consents {
		client, err := as.deps.Clients.GetByClientID(ctx, c.ClientID)
		if errors.Is(err, oautherrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizedClients] loading client")
		}
		out = append(out, AuthorizedClient{
			ClientID:   client.ClientID,
			Name:       client.Name,
			LogoURL:    client.LogoURL,
			WebsiteURL: client.WebsiteURL,
			Scopes:     c.Scopes,
			GrantedAt:  c.CreatedAt.Unix(),
			UpdatedAt:  c.UpdatedAt.Unix(),
		})
	}
	return out, nil
}

// RevokeAuthorization withdraws the user's consent for a client and
// revokes the tokens that client holds for the user.
func (as *AuthorizationService) RevokeAuthorization(ctx context.Context, user *users.User, clientID string) error {
	if user == nil {
		return oautherrors.ErrUnauthorized
	}
	removed, err := as.deps.Consents.Revoke(ctx, user.ID, clientID)
	if err != nil {
		return errors.Wrap(err, "[RevokeAuthorization]")
	}
	if !removed {
		return errors.Wrap(oautherrors.ErrNotFound, "[RevokeAuthorization] no consent for client")
	}
	if err := as.deps.Tokens.RevokeForClient(ctx, clientID, user.ID); err != nil {
		return errors.Wrap(err, "[RevokeAuthorization] revoking tokens")
	}
	events.Emit(ctx, as.publisher, events.New(events.ConsentRevoked, clientID, user.ID))
	return nil
}

// DeleteExpired is used by the cleanup job.
func (as *AuthorizationService) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	codes, err := as.deps.Codes.DeleteExpired(ctx, before)
	if err != nil {
		return 0, errors.Wrap(err, "[DeleteExpired] codes")
	}
	tokens, err := as.deps.Tokens.DeleteExpired(ctx, before)
	if err != nil {
		return codes, errors.Wrap(err, "[DeleteExpired] tokens")
	}
	return codes + tokens, nil
}
