package oauth2

// ResponseType represents the OAuth 2.0 response type.
type ResponseType string

const (
	// CodeResponseType selects the authorization code flow, the only flow
	// this server supports.
	// Example: /oauth/authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 hashes the verifier.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// Server validates: BASE64URL(SHA256(provided code_verifier)) == stored code_challenge
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypePlain sends the verifier itself as the challenge.
	// Server validates: provided code_verifier == stored code_challenge
	CodeMethodTypePlain CodeMethodType = "plain"
)

// Valid reports whether m is a supported PKCE method.
func (m CodeMethodType) Valid() bool {
	return m == CodeMethodTypeS256 || m == CodeMethodTypePlain
}

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, redirect_uri, code_verifier (if PKCE) and client credentials
	// Returns: access_token, refresh_token, id_token (when openid was granted)
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new access token.
	// Token request includes: refresh_token, optional narrower scope and client credentials
	RefreshTokenGrant GrantType = "refresh_token"
)

// TokenTypeHint is the optional token_type_hint of RFC 7009 and RFC 7662.
type TokenTypeHint string

const (
	AccessTokenHint  TokenTypeHint = "access_token"
	RefreshTokenHint TokenTypeHint = "refresh_token"
)

// BearerTokenType is the only token_type issued.
const BearerTokenType = "Bearer"
