package idtoken_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/idtoken"
	"github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/token/keys"
	"github.com/jrsteele09/go-oidc-provider/users"
)

const testIssuer = "https://id.example"

var testUser = &users.User{
	ID:            "user-1",
	Email:         "ada@example.com",
	Username:      "ada",
	FullName:      "Ada Lovelace",
	Role:          users.RoleUser,
	IsActive:      true,
	EmailVerified: true,
}

func newSigner(t *testing.T) *keys.KeyPairSigner {
	t.Helper()
	kp, err := keys.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	return keys.NewKeyPairSigner(kp)
}

func TestIssuer_Issue(t *testing.T) {
	signer := newSigner(t)
	now := time.Now().Truncate(time.Second)
	issuer := idtoken.NewIssuer(signer, idtoken.WithNowFunc(func() time.Time { return now }))

	signed, err := issuer.Issue(idtoken.Request{
		Issuer:   testIssuer,
		ClientID: "client-1",
		User:     testUser,
		Scopes:   []string{"openid", "profile", "email"},
		Nonce:    "n-0S6",
	})
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, signer.GetVerificationKey,
		jwt.WithIssuer(testIssuer), jwt.WithAudience("client-1"), jwt.WithValidMethods([]string{keys.RS256}))
	require.NoError(t, err)

	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, "user-1", claims["sub"])
	require.Equal(t, "n-0S6", claims["nonce"])
	require.Equal(t, "ada@example.com", claims["email"])
	require.Equal(t, true, claims["email_verified"])
	require.Equal(t, "Ada Lovelace", claims["name"])
	require.Equal(t, "ada", claims["preferred_username"])
	require.Equal(t, float64(now.Add(time.Hour).Unix()), claims["exp"])
}

func TestIssuer_ScopeFiltering(t *testing.T) {
	signer := newSigner(t)
	signed, err := idtoken.NewIssuer(signer).Issue(idtoken.Request{
		Issuer:   testIssuer,
		ClientID: "client-1",
		User:     testUser,
		Scopes:   []string{"openid", "profile"},
	})
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, signer.GetVerificationKey)
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.NotContains(t, claims, "email")
	require.NotContains(t, claims, "nonce")
	require.Equal(t, "ada", claims["preferred_username"])
}

func TestIssuer_NoSigner(t *testing.T) {
	_, err := idtoken.NewIssuer(nil).Issue(idtoken.Request{Issuer: testIssuer, ClientID: "c", User: testUser})
	require.ErrorIs(t, err, errors.ErrSigningKeyUnavailable)
}

func TestUserClaims(t *testing.T) {
	require.Equal(t, map[string]any{"sub": "user-1"}, idtoken.UserClaims(testUser, []string{"openid"}))

	claims := idtoken.UserClaims(testUser, []string{"openid", "email"})
	require.Equal(t, "ada@example.com", claims["email"])
	require.NotContains(t, claims, "preferred_username")
}
