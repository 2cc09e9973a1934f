package authcode

import (
	"time"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// AuthorizationCode is the server-side record of an issued code. Only the
// keyed digest of the code is stored.
type AuthorizationCode struct {
	CodeHash            string                `json:"code_hash"`
	ClientID            string                `json:"client_id"`
	UserID              string                `json:"user_id"`
	RedirectURI         string                `json:"redirect_uri"`
	Scopes              []string              `json:"scopes"`
	CodeChallenge       string                `json:"code_challenge,omitempty"`
	CodeChallengeMethod oauth2.CodeMethodType `json:"code_challenge_method,omitempty"`
	Nonce               string                `json:"nonce,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	ExpiresAt           time.Time             `json:"expires_at"`
	UsedAt              *time.Time            `json:"used_at,omitempty"`
}

// Used reports whether the code has been consumed.
func (c *AuthorizationCode) Used() bool {
	return c.UsedAt != nil
}

// Expired reports whether now is at or past the expiry.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
