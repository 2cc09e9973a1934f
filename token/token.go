package token

import (
	"time"
)

// AccessToken is an opaque bearer token record. Only the keyed digest of
// the token is stored.
type AccessToken struct {
	ID        string     `json:"id"`
	TokenHash string     `json:"-"`
	ClientID  string     `json:"client_id"`
	UserID    string     `json:"user_id"`
	Scopes    []string   `json:"scopes"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the token is unrevoked and unexpired at now.
func (t *AccessToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// RefreshToken is bound to the access token it last produced.
type RefreshToken struct {
	ID            string     `json:"id"`
	TokenHash     string     `json:"-"`
	AccessTokenID string     `json:"access_token_id"`
	ClientID      string     `json:"client_id"`
	UserID        string     `json:"user_id"`
	Scopes        []string   `json:"scopes"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Issued is a freshly minted access token. Token is the only copy of the
// plaintext.
type Issued struct {
	Token     string
	ID        string
	ExpiresIn int64
	Scopes    []string
}

// RefreshResult is the outcome of a refresh_token grant.
type RefreshResult struct {
	AccessToken  Issued
	RefreshToken string
	UserID       string
}

// Introspection is an RFC 7662 response body.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Sub       string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Iss       string `json:"iss,omitempty"`
}

// Rotation selects what a refresh_token grant does with the presented
// refresh token.
type Rotation string

const (
	// RotationRotate revokes the presented refresh token and issues a new one.
	RotationRotate Rotation = "rotate"
	// RotationRepoint keeps the refresh token and points it at the new access token.
	RotationRepoint Rotation = "repoint"
)

func ParseRotation(s string) (Rotation, bool) {
	switch Rotation(s) {
	case RotationRotate, "":
		return RotationRotate, true
	case RotationRepoint:
		return RotationRepoint, true
	}
	return "", false
}
