package consent

import (
	"time"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// Consent records the scopes a user granted to a client. There is at most
// one per (UserID, ClientID); granting again replaces the scope set.
type Consent struct {
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Policy decides whether a stored consent satisfies a new request.
type Policy string

const (
	// PolicySuperset requires the stored scopes to contain every requested scope.
	PolicySuperset Policy = "superset"
	// PolicyAny accepts any stored consent regardless of the requested scopes.
	PolicyAny Policy = "any"
)

// ParsePolicy falls back to PolicySuperset for unknown values.
func ParsePolicy(s string) Policy {
	if Policy(s) == PolicyAny {
		return PolicyAny
	}
	return PolicySuperset
}

// Covers reports whether c satisfies requested under p.
func (p Policy) Covers(c *Consent, requested []string) bool {
	if c == nil {
		return false
	}
	if p == PolicyAny {
		return true
	}
	return oauth2.IsSubset(requested, c.Scopes)
}
