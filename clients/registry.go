package clients

import (
	"context"
	"crypto/subtle"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-oidc-provider/codec"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/users"
)

const (
	clientIDBytes     = 16
	clientSecretBytes = 32

	defaultCredentialCacheTTL = 5 * time.Minute
)

// forbiddenRedirectSchemes execute or embed content in the user agent
// instead of navigating to the client.
var forbiddenRedirectSchemes = []string{"javascript", "data", "vbscript", "file"}

// Registration is the caller-supplied part of a new client.
type Registration struct {
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description" yaml:"description"`
	RedirectURIs  []string `json:"redirect_uris" yaml:"redirect_uris"`
	AllowedScopes []string `json:"allowed_scopes" yaml:"allowed_scopes"`
	LogoURL       string   `json:"logo_url" yaml:"logo_url"`
	WebsiteURL    string   `json:"website_url" yaml:"website_url"`
	IsTrusted     bool     `json:"is_trusted" yaml:"is_trusted"`
}

// Registry manages client registration and authentication.
type Registry struct {
	repo     Repo
	codec    *codec.Codec
	verified *ttlcache.Cache[string, string] // client_id -> digest of a verified secret
	cacheTTL time.Duration
	nowFunc  func() time.Time
}

type RegistryOption func(*Registry)

func WithNowFunc(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

// WithCredentialCacheTTL bounds how long a verified secret skips bcrypt.
// Zero disables the cache.
func WithCredentialCacheTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.cacheTTL = ttl
	}
}

func NewRegistry(repo Repo, c *codec.Codec, options ...RegistryOption) (*Registry, error) {
	if repo == nil {
		return nil, errors.New("[NewRegistry] client repo is required")
	}
	if c == nil {
		return nil, errors.New("[NewRegistry] codec is required")
	}
	r := &Registry{
		repo:     repo,
		codec:    c,
		cacheTTL: defaultCredentialCacheTTL,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.cacheTTL > 0 {
		r.verified = ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](r.cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		)
	}
	return r, nil
}

// Register creates a client owned by owner and returns it together with the
// plaintext secret. The secret cannot be retrieved again.
func (r *Registry) Register(ctx context.Context, reg Registration, owner *users.User) (*Client, string, error) {
	if owner == nil || owner.ID == "" {
		return nil, "", errors.Wrap(oautherrors.ErrUnauthorized, "[Register] owner is required")
	}
	if err := validateRegistration(&reg); err != nil {
		return nil, "", errors.Wrap(err, "[Register]")
	}

	trusted := reg.IsTrusted
	if trusted && !owner.IsAdmin() {
		log.Warn().Str("owner", owner.ID).Msg("non-admin requested a trusted client, flag cleared")
		trusted = false
	}

	clientID, err := r.codec.GenerateToken(clientIDBytes)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Register] generating client_id")
	}
	secret, err := r.codec.GenerateToken(clientSecretBytes)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Register] generating client secret")
	}
	hash, err := r.codec.Hash(secret)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Register] hashing client secret")
	}

	now := r.nowFunc().UTC()
	client := &Client{
		ID:            uuid.New().String(),
		ClientID:      clientID,
		SecretHash:    hash,
		Name:          reg.Name,
		Description:   reg.Description,
		RedirectURIs:  reg.RedirectURIs,
		AllowedScopes: reg.AllowedScopes,
		LogoURL:       reg.LogoURL,
		WebsiteURL:    reg.WebsiteURL,
		IsTrusted:     trusted,
		OwnerUserID:   owner.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.repo.Upsert(ctx, client); err != nil {
		return nil, "", errors.Wrap(err, "[Register] storing client")
	}
	return client, secret, nil
}

// GetByClientID returns errors.ErrNotFound for unknown clients.
func (r *Registry) GetByClientID(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, oautherrors.ErrNotFound
	}
	return r.repo.GetByClientID(ctx, clientID)
}

// VerifyCredentials authenticates a client. Any failure, including an
// unknown client, is reported as errors.ErrInvalidClient.
func (r *Registry) VerifyCredentials(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, oautherrors.ErrInvalidClient
	}
	client, err := r.repo.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, oautherrors.ErrNotFound) {
			return nil, oautherrors.ErrInvalidClient
		}
		return nil, errors.Wrap(err, "[VerifyCredentials] loading client")
	}

	digest := r.codec.Digest(clientSecret)
	if r.verified != nil {
		if item := r.verified.Get(clientID); item != nil {
			if subtle.ConstantTimeCompare([]byte(item.Value()), []byte(digest)) == 1 {
				return client, nil
			}
		}
	}

	if !r.codec.Verify(clientSecret, client.SecretHash) {
		return nil, oautherrors.ErrInvalidClient
	}
	if r.verified != nil {
		r.verified.Set(clientID, digest, ttlcache.DefaultTTL)
	}
	return client, nil
}

// ValidateRedirectURI is an exact string membership test.
func (r *Registry) ValidateRedirectURI(client *Client, uri string) bool {
	return client != nil && uri != "" && client.HasRedirectURI(uri)
}

// ValidateScopes reports whether every requested scope is allowed for the
// client. An empty request means the default set and is always valid.
func (r *Registry) ValidateScopes(client *Client, requested []string) bool {
	return client != nil && client.AllowsScopes(requested)
}

// ResolveScopes turns a request into the scope set to grant.
func (r *Registry) ResolveScopes(client *Client, requested []string) ([]string, error) {
	requested = oauth2.Normalize(requested)
	if len(requested) == 0 {
		return oauth2.DefaultScopes(), nil
	}
	if !r.ValidateScopes(client, requested) {
		return nil, oautherrors.ErrInvalidScope
	}
	return requested, nil
}

// List returns every client for admins and only owned clients otherwise.
func (r *Registry) List(ctx context.Context, requester *users.User, offset, limit int) ([]*Client, error) {
	if requester == nil {
		return nil, oautherrors.ErrUnauthorized
	}
	owner := requester.ID
	if requester.IsAdmin() {
		owner = ""
	}
	list, err := r.repo.List(ctx, owner, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "[List] listing clients")
	}
	return list, nil
}

// Delete removes a client. Only admins and the owner may delete it.
func (r *Registry) Delete(ctx context.Context, requester *users.User, clientID string) (*Client, error) {
	if requester == nil {
		return nil, oautherrors.ErrUnauthorized
	}
	client, err := r.repo.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !requester.IsAdmin() && client.OwnerUserID != requester.ID {
		return nil, oautherrors.ErrForbidden
	}
	if err := r.repo.Delete(ctx, clientID); err != nil {
		return nil, errors.Wrap(err, "[Delete] deleting client")
	}
	if r.verified != nil {
		r.verified.Delete(clientID)
	}
	return client, nil
}

func validateRegistration(reg *Registration) error {
	reg.Name = strings.TrimSpace(reg.Name)
	if reg.Name == "" {
		return errors.Wrap(oautherrors.ErrInvalidRequest, "name is required")
	}
	if len(reg.RedirectURIs) == 0 {
		return errors.Wrap(oautherrors.ErrInvalidRedirectURI, "at least one redirect URI is required")
	}
	seen := map[string]bool{}
	uris := make([]string, 0, len(reg.RedirectURIs))
	for _, raw := range reg.RedirectURIs {
		if err := validateRedirectURI(raw); err != nil {
			return err
		}
		if !seen[raw] {
			seen[raw] = true
			uris = append(uris, raw)
		}
	}
	reg.RedirectURIs = uris

	for _, link := range []string{reg.LogoURL, reg.WebsiteURL} {
		if link == "" {
			continue
		}
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Wrapf(oautherrors.ErrInvalidRequest, "invalid URL %q", link)
		}
	}

	reg.AllowedScopes = oauth2.Normalize(reg.AllowedScopes)
	if len(reg.AllowedScopes) == 0 {
		reg.AllowedScopes = oauth2.DefaultScopes()
	}
	return nil
}

// validateRedirectURI enforces RFC 6749 §3.1.2: absolute, no fragment.
// http(s) URIs need a host; custom schemes for native apps are allowed.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return errors.Wrapf(oautherrors.ErrInvalidRedirectURI, "%q is not an absolute URI", raw)
	}
	if slices.Contains(forbiddenRedirectSchemes, strings.ToLower(u.Scheme)) {
		return errors.Wrapf(oautherrors.ErrInvalidRedirectURI, "%q uses a forbidden scheme", raw)
	}
	if u.Fragment != "" || strings.Contains(raw, "#") {
		return errors.Wrapf(oautherrors.ErrInvalidRedirectURI, "%q must not contain a fragment", raw)
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return errors.Wrapf(oautherrors.ErrInvalidRedirectURI, "%q has no host", raw)
	}
	return nil
}
