package oauth2

// TokenResponse represents the response from an OAuth2 token request
// (RFC 6749 §5.1). Returned from /oauth/token for both supported grants.
type TokenResponse struct {
	// AccessToken is an opaque bearer token.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int64 `json:"expires_in"`

	// RefreshToken is an opaque token used to obtain new access tokens.
	// Omitted when the refresh token could not be persisted; the access
	// token is still valid on its own.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// IdToken is the signed OpenID Connect ID token.
	// Only present: when "openid" was granted
	IdToken *string `json:"id_token,omitempty"`

	// Scope is the space separated list of granted scopes.
	Scope string `json:"scope"`
}
