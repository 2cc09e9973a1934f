package oauth2

import (
	"slices"
	"strings"
)

// Standard OIDC scopes
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeOfflineAccess = "offline_access"
)

// ScopeManage lets an access token act for its user on the client
// management API. Clients only receive it when registered with it.
const ScopeManage = "oauth:manage"

// DefaultScopes is granted when a request names no scope at all.
func DefaultScopes() []string {
	return []string{ScopeOpenID, ScopeProfile, ScopeEmail}
}

// ParseScopes splits a space separated scope string, dropping empties and
// duplicates while keeping the first-seen order.
func ParseScopes(scope string) []string {
	return Normalize(strings.Fields(scope))
}

// JoinScopes renders scopes in the wire format.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// Normalize drops empty and duplicate entries, keeping order.
func Normalize(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Contains reports whether scope is present in scopes.
func Contains(scopes []string, scope string) bool {
	return slices.Contains(scopes, scope)
}

// IsSubset reports whether every entry of requested appears in granted.
func IsSubset(requested, granted []string) bool {
	for _, s := range requested {
		if !slices.Contains(granted, s) {
			return false
		}
	}
	return true
}
