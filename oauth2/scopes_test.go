package oauth2_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

func TestParseScopes(t *testing.T) {
	require.Equal(t, []string{"openid", "profile"}, oauth2.ParseScopes("  openid profile openid "))
	require.Empty(t, oauth2.ParseScopes(""))
}

func TestIsSubset(t *testing.T) {
	granted := []string{"openid", "profile", "email"}
	require.True(t, oauth2.IsSubset([]string{"openid", "email"}, granted))
	require.True(t, oauth2.IsSubset(nil, granted))
	require.False(t, oauth2.IsSubset([]string{"openid", "admin"}, granted))
}

func TestCodeMethodType_Valid(t *testing.T) {
	require.True(t, oauth2.CodeMethodTypeS256.Valid())
	require.True(t, oauth2.CodeMethodTypePlain.Valid())
	require.False(t, oauth2.CodeMethodType("S512").Valid())
}
