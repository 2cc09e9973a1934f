package clients_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-oidc-provider/clients"
	fakeclientrepo "github.com/jrsteele09/go-oidc-provider/clients/fakerepo"
	"github.com/jrsteele09/go-oidc-provider/codec"
	"github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/users"
)

const (
	testDigestKey   = "0123456789abcdef0123456789abcdef"
	testRedirectURI = "https://app.example/cb"
)

var (
	adminUser = &users.User{ID: "admin-1", Role: users.RoleAdmin, IsActive: true}
	plainUser = &users.User{ID: "user-1", Role: users.RoleUser, IsActive: true}
	otherUser = &users.User{ID: "user-2", Role: users.RoleUser, IsActive: true}
)

type testFixture struct {
	repo     *fakeclientrepo.FakeClientRepo
	registry *clients.Registry
}

func setupTestFixture(t *testing.T, options ...clients.RegistryOption) *testFixture {
	t.Helper()
	c, err := codec.New([]byte(testDigestKey), codec.WithCost(bcrypt.MinCost))
	require.NoError(t, err)

	repo := fakeclientrepo.NewFakeClientRepo()
	registry, err := clients.NewRegistry(repo, c, options...)
	require.NoError(t, err)
	return &testFixture{repo: repo, registry: registry}
}

func (f *testFixture) register(t *testing.T, owner *users.User, reg clients.Registration) (*clients.Client, string) {
	t.Helper()
	client, secret, err := f.registry.Register(context.Background(), reg, owner)
	require.NoError(t, err)
	return client, secret
}

func defaultRegistration() clients.Registration {
	return clients.Registration{
		Name:         "Example App",
		Description:  "Portfolio viewer",
		RedirectURIs: []string{testRedirectURI},
		LogoURL:      "https://app.example/logo.png",
	}
}

func TestRegistry_Register(t *testing.T) {
	f := setupTestFixture(t)

	client, secret := f.register(t, plainUser, defaultRegistration())

	require.NotEmpty(t, client.ClientID)
	require.Len(t, secret, 64)
	require.NotEqual(t, secret, client.SecretHash)
	require.Equal(t, plainUser.ID, client.OwnerUserID)
	require.Equal(t, []string{"openid", "profile", "email"}, client.AllowedScopes)

	stored, err := f.registry.GetByClientID(context.Background(), client.ClientID)
	require.NoError(t, err)
	require.Equal(t, client.ClientID, stored.ClientID)

	data, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NotContains(t, string(data), stored.SecretHash)
	require.NotContains(t, string(data), secret)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*clients.Registration)
		target error
	}{
		{"missing name", func(r *clients.Registration) { r.Name = " " }, errors.ErrInvalidRequest},
		{"no redirect URIs", func(r *clients.Registration) { r.RedirectURIs = nil }, errors.ErrInvalidRedirectURI},
		{"relative redirect", func(r *clients.Registration) { r.RedirectURIs = []string{"/cb"} }, errors.ErrInvalidRedirectURI},
		{"fragment", func(r *clients.Registration) { r.RedirectURIs = []string{"https://app.example/cb#x"} }, errors.ErrInvalidRedirectURI},
		{"javascript redirect", func(r *clients.Registration) { r.RedirectURIs = []string{"javascript:alert(document.cookie)"} }, errors.ErrInvalidRedirectURI},
		{"uppercase javascript redirect", func(r *clients.Registration) { r.RedirectURIs = []string{"JavaScript:alert(1)"} }, errors.ErrInvalidRedirectURI},
		{"data redirect", func(r *clients.Registration) { r.RedirectURIs = []string{"data:text/html,<script>alert(1)</script>"} }, errors.ErrInvalidRedirectURI},
		{"vbscript redirect", func(r *clients.Registration) { r.RedirectURIs = []string{"vbscript:msgbox(1)"} }, errors.ErrInvalidRedirectURI},
		{"file redirect", func(r *clients.Registration) { r.RedirectURIs = []string{"file:///etc/passwd"} }, errors.ErrInvalidRedirectURI},
		{"bad logo", func(r *clients.Registration) { r.LogoURL = "javascript:alert(1)" }, errors.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := defaultRegistration()
			tt.mutate(&reg)
			_, _, err := f.registry.Register(ctx, reg, plainUser)
			require.ErrorIs(t, err, tt.target)
		})
	}

	t.Run("no owner", func(t *testing.T) {
		_, _, err := f.registry.Register(ctx, defaultRegistration(), nil)
		require.ErrorIs(t, err, errors.ErrUnauthorized)
	})

	t.Run("native app scheme", func(t *testing.T) {
		reg := defaultRegistration()
		reg.RedirectURIs = []string{"com.example.app:/oauth2redirect"}
		_, _, err := f.registry.Register(ctx, reg, plainUser)
		require.NoError(t, err)
	})
}

func TestRegistry_TrustedOnlyForAdmins(t *testing.T) {
	f := setupTestFixture(t)
	reg := defaultRegistration()
	reg.IsTrusted = true

	byUser, _ := f.register(t, plainUser, reg)
	require.False(t, byUser.IsTrusted)

	byAdmin, _ := f.register(t, adminUser, reg)
	require.True(t, byAdmin.IsTrusted)
}

func TestRegistry_VerifyCredentials(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	client, secret := f.register(t, plainUser, defaultRegistration())

	t.Run("valid", func(t *testing.T) {
		got, err := f.registry.VerifyCredentials(ctx, client.ClientID, secret)
		require.NoError(t, err)
		require.Equal(t, client.ClientID, got.ClientID)
	})

	t.Run("cached verification still rejects a wrong secret", func(t *testing.T) {
		_, err := f.registry.VerifyCredentials(ctx, client.ClientID, secret)
		require.NoError(t, err)
		_, err = f.registry.VerifyCredentials(ctx, client.ClientID, secret+"x")
		require.ErrorIs(t, err, errors.ErrInvalidClient)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := f.registry.VerifyCredentials(ctx, "nope", secret)
		require.ErrorIs(t, err, errors.ErrInvalidClient)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := f.registry.VerifyCredentials(ctx, client.ClientID, "")
		require.ErrorIs(t, err, errors.ErrInvalidClient)
	})

	t.Run("deleted client is rejected despite the cache", func(t *testing.T) {
		_, err := f.registry.Delete(ctx, plainUser, client.ClientID)
		require.NoError(t, err)
		_, err = f.registry.VerifyCredentials(ctx, client.ClientID, secret)
		require.ErrorIs(t, err, errors.ErrInvalidClient)
	})
}

func TestRegistry_VerifyCredentialsWithoutCache(t *testing.T) {
	f := setupTestFixture(t, clients.WithCredentialCacheTTL(0))
	client, secret := f.register(t, plainUser, defaultRegistration())

	_, err := f.registry.VerifyCredentials(context.Background(), client.ClientID, secret)
	require.NoError(t, err)
}

func TestRegistry_ValidateRedirectURI(t *testing.T) {
	f := setupTestFixture(t)
	client, _ := f.register(t, plainUser, defaultRegistration())

	require.True(t, f.registry.ValidateRedirectURI(client, testRedirectURI))
	for _, uri := range []string{
		"https://app.example/cb/",
		"https://app.example/cb?x=1",
		"https://app.example/c",
		"https://APP.example/cb",
		"",
	} {
		require.False(t, f.registry.ValidateRedirectURI(client, uri), uri)
	}
}

func TestRegistry_Scopes(t *testing.T) {
	f := setupTestFixture(t)
	reg := defaultRegistration()
	reg.AllowedScopes = []string{"openid", "profile", "positions:read"}
	client, _ := f.register(t, plainUser, reg)

	require.True(t, f.registry.ValidateScopes(client, []string{"openid", "positions:read"}))
	require.False(t, f.registry.ValidateScopes(client, []string{"openid", "email"}))
	require.True(t, f.registry.ValidateScopes(client, nil), "empty request is always valid")

	scopes, err := f.registry.ResolveScopes(client, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"openid", "profile", "email"}, scopes)

	scopes, err = f.registry.ResolveScopes(client, []string{"profile", "openid", "profile"})
	require.NoError(t, err)
	require.Equal(t, []string{"profile", "openid"}, scopes)

	_, err = f.registry.ResolveScopes(client, []string{"admin"})
	require.ErrorIs(t, err, errors.ErrInvalidScope)
}

func TestRegistry_ListAndDelete(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := setupTestFixture(t, clients.WithNowFunc(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	ctx := context.Background()

	mine, _ := f.register(t, plainUser, defaultRegistration())
	theirs, _ := f.register(t, otherUser, defaultRegistration())

	t.Run("owners see their own", func(t *testing.T) {
		list, err := f.registry.List(ctx, plainUser, 0, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, mine.ClientID, list[0].ClientID)
	})

	t.Run("admins see all", func(t *testing.T) {
		list, err := f.registry.List(ctx, adminUser, 0, 0)
		require.NoError(t, err)
		require.Len(t, list, 2)

		page, err := f.registry.List(ctx, adminUser, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, theirs.ClientID, page[0].ClientID)
	})

	t.Run("non owner cannot delete", func(t *testing.T) {
		_, err := f.registry.Delete(ctx, plainUser, theirs.ClientID)
		require.ErrorIs(t, err, errors.ErrForbidden)
	})

	t.Run("admin can delete", func(t *testing.T) {
		_, err := f.registry.Delete(ctx, adminUser, theirs.ClientID)
		require.NoError(t, err)
		_, err = f.registry.GetByClientID(ctx, theirs.ClientID)
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := f.registry.Delete(ctx, adminUser, "missing")
		require.ErrorIs(t, err, errors.ErrNotFound)
	})
}
