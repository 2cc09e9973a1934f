package auth

import (
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// AuthorizationParameters are the query (GET) or form (POST) values of an
// authorization request.
type AuthorizationParameters struct {
	ResponseType        oauth2.ResponseType
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod oauth2.CodeMethodType
	Nonce               string
}

// TokenParameters are the form values of a token request. Client
// credentials are authenticated before the service sees them.
type TokenParameters struct {
	GrantType    oauth2.GrantType
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// ClientSummary is what the consent screen shows about a client.
type ClientSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
	WebsiteURL  string `json:"website_url,omitempty"`
}

// ConsentPrompt asks the resource owner to approve a client.
type ConsentPrompt struct {
	NeedsConsent bool          `json:"needs_consent"`
	Client       ClientSummary `json:"client"`
	Scopes       []string      `json:"scopes"`
	State        string        `json:"state,omitempty"`
	RedirectURI  string        `json:"redirect_uri"`
}

// AuthorizeResult carries either a redirect back to the client or a
// consent prompt.
type AuthorizeResult struct {
	RedirectURL string         `json:"redirect_url,omitempty"`
	Consent     *ConsentPrompt `json:"-"`
}

// AuthorizedClient is one entry of the user's consent list.
type AuthorizedClient struct {
	ClientID   string   `json:"client_id"`
	Name       string   `json:"name"`
	LogoURL    string   `json:"logo_url,omitempty"`
	WebsiteURL string   `json:"website_url,omitempty"`
	Scopes     []string `json:"scopes"`
	GrantedAt  int64    `json:"granted_at"`
	UpdatedAt  int64    `json:"updated_at"`
}
