package clients

import (
	"slices"
	"time"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// Client is a registered OAuth 2.0 confidential client.
type Client struct {
	ID            string    `json:"id"`        // Internal identifier
	ClientID      string    `json:"client_id"` // Public identifier, globally unique
	SecretHash    string    `json:"-"`         // bcrypt hash; the plaintext is never stored
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	RedirectURIs  []string  `json:"redirect_uris"`
	AllowedScopes []string  `json:"allowed_scopes"`
	LogoURL       string    `json:"logo_url,omitempty"`
	WebsiteURL    string    `json:"website_url,omitempty"`
	IsTrusted     bool      `json:"is_trusted"` // Trusted clients skip the consent prompt
	OwnerUserID   string    `json:"owner_user_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasRedirectURI reports whether uri is registered, compared as an exact
// string. Prefix or wildcard matches would allow open redirects.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	return slices.Contains(c.AllowedScopes, scope)
}

// AllowsScopes checks every requested scope against the allowed set. An
// empty request stands for the default scopes and is always allowed.
func (c *Client) AllowsScopes(requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	return oauth2.IsSubset(requested, c.AllowedScopes)
}
