package idtoken

import (
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/users"
)

// UserClaims projects a user into OIDC standard claims, keeping only what
// the granted scopes release. sub is always present.
func UserClaims(user *users.User, scopes []string) map[string]any {
	claims := map[string]any{"sub": user.ID}
	if oauth2.Contains(scopes, oauth2.ScopeProfile) {
		claims["name"] = user.FullName
		claims["preferred_username"] = user.Username
	}
	if oauth2.Contains(scopes, oauth2.ScopeEmail) {
		claims["email"] = user.Email
		claims["email_verified"] = user.EmailVerified
	}
	return claims
}
