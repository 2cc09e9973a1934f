package sqlstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/authcode"
	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/store/sqlstore"
	"github.com/jrsteele09/go-oidc-provider/token"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sqlstore.DB {
	t.Helper()
	ctx := context.Background()
	db, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "oidc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := sqlstore.Open(context.Background(), "mysql", "")
	require.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
	v, err := db.MigrationVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
}

func TestClientRepo(t *testing.T) {
	ctx := context.Background()
	repo := sqlstore.NewClientRepo(openTestDB(t))

	c := &clients.Client{
		ClientID:      "client-a",
		SecretHash:    "hash",
		Name:          "App A",
		RedirectURIs:  []string{"https://a.example/cb"},
		AllowedScopes: []string{"openid", "email"},
		IsTrusted:     true,
		OwnerUserID:   "user-1",
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
	require.NoError(t, repo.Upsert(ctx, c))
	require.NotEmpty(t, c.ID)

	got, err := repo.GetByClientID(ctx, "client-a")
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)
	require.Equal(t, []string{"https://a.example/cb"}, got.RedirectURIs)
	require.Equal(t, []string{"openid", "email"}, got.AllowedScopes)
	require.True(t, got.IsTrusted)
	require.True(t, baseTime.Equal(got.CreatedAt))

	update := &clients.Client{
		ClientID:      "client-a",
		SecretHash:    "hash2",
		Name:          "App A v2",
		RedirectURIs:  []string{"https://a.example/cb2"},
		AllowedScopes: []string{"openid"},
		OwnerUserID:   "user-1",
		CreatedAt:     baseTime.Add(time.Hour),
		UpdatedAt:     baseTime.Add(time.Hour),
	}
	require.NoError(t, repo.Upsert(ctx, update))
	require.Equal(t, c.ID, update.ID)
	require.True(t, baseTime.Equal(update.CreatedAt))

	got, err = repo.GetByClientID(ctx, "client-a")
	require.NoError(t, err)
	require.Equal(t, "App A v2", got.Name)
	require.False(t, got.IsTrusted)

	require.NoError(t, repo.Upsert(ctx, &clients.Client{
		ClientID: "client-b", OwnerUserID: "user-2", CreatedAt: baseTime.Add(time.Minute), UpdatedAt: baseTime,
	}))
	require.NoError(t, repo.Upsert(ctx, &clients.Client{
		ClientID: "client-c", OwnerUserID: "user-1", CreatedAt: baseTime.Add(2 * time.Minute), UpdatedAt: baseTime,
	}))

	all, err := repo.List(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "client-a", all[0].ClientID)

	owned, err := repo.List(ctx, "user-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, owned, 2)

	page, err := repo.List(ctx, "", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "client-b", page[0].ClientID)

	tail, err := repo.List(ctx, "", 2, 0)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, "client-c", tail[0].ClientID)

	require.NoError(t, repo.Delete(ctx, "client-b"))
	require.ErrorIs(t, repo.Delete(ctx, "client-b"), errors.ErrNotFound)
	_, err = repo.GetByClientID(ctx, "client-b")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestConsentRepo(t *testing.T) {
	ctx := context.Background()
	repo := sqlstore.NewConsentRepo(openTestDB(t))

	_, err := repo.Get(ctx, "user-1", "client-a")
	require.ErrorIs(t, err, errors.ErrNotFound)

	c, err := repo.Upsert(ctx, "user-1", "client-a", []string{"openid"}, baseTime)
	require.NoError(t, err)
	require.Equal(t, []string{"openid"}, c.Scopes)

	c, err = repo.Upsert(ctx, "user-1", "client-a", []string{"email", "openid"}, baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{"email", "openid"}, c.Scopes)
	require.True(t, baseTime.Equal(c.CreatedAt))
	require.True(t, baseTime.Add(time.Hour).Equal(c.UpdatedAt))

	_, err = repo.Upsert(ctx, "user-1", "client-b", []string{"openid"}, baseTime)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, "user-2", "client-a", []string{"openid"}, baseTime)
	require.NoError(t, err)

	list, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "client-a", list[0].ClientID)

	found, err := repo.Delete(ctx, "user-1", "client-b")
	require.NoError(t, err)
	require.True(t, found)
	found, err = repo.Delete(ctx, "user-1", "client-b")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, repo.DeleteByClient(ctx, "client-a"))
	list, err = repo.ListByUser(ctx, "user-2")
	require.NoError(t, err)
	require.Empty(t, list)
}

func newCode(hash string) *authcode.AuthorizationCode {
	return &authcode.AuthorizationCode{
		CodeHash:            hash,
		ClientID:            "client-a",
		UserID:              "user-1",
		RedirectURI:         "https://a.example/cb",
		Scopes:              []string{"openid"},
		CodeChallenge:       "challenge",
		CodeChallengeMethod: oauth2.CodeMethodTypeS256,
		Nonce:               "n-1",
		CreatedAt:           baseTime,
		ExpiresAt:           baseTime.Add(10 * time.Minute),
	}
}

func TestCodeRepo_Consume(t *testing.T) {
	ctx := context.Background()
	repo := sqlstore.NewCodeRepo(openTestDB(t))

	require.NoError(t, repo.Create(ctx, newCode("h1")))
	require.ErrorIs(t, repo.Create(ctx, newCode("h1")), errors.ErrConflict)

	_, err := repo.Consume(ctx, "missing", baseTime, func(*authcode.AuthorizationCode) error { return nil })
	require.ErrorIs(t, err, errors.ErrNotFound)

	_, err = repo.Consume(ctx, "h1", baseTime, func(*authcode.AuthorizationCode) error { return errors.ErrRedirectMismatch })
	require.ErrorIs(t, err, errors.ErrRedirectMismatch)

	rejectUsed := func(c *authcode.AuthorizationCode) error {
		if c.Used() {
			return errors.ErrInvalidGrant
		}
		return nil
	}
	code, err := repo.Consume(ctx, "h1", baseTime.Add(time.Minute), rejectUsed)
	require.NoError(t, err)
	require.True(t, code.Used())
	require.Equal(t, "n-1", code.Nonce)
	require.Equal(t, oauth2.CodeMethodTypeS256, code.CodeChallengeMethod)

	_, err = repo.Consume(ctx, "h1", baseTime.Add(2*time.Minute), rejectUsed)
	require.ErrorIs(t, err, errors.ErrInvalidGrant)
}

func TestCodeRepo_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	repo := sqlstore.NewCodeRepo(openTestDB(t))
	require.NoError(t, repo.Create(ctx, newCode("race")))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Consume(ctx, "race", baseTime, func(c *authcode.AuthorizationCode) error {
				if c.Used() {
					return errors.ErrInvalidGrant
				}
				return nil
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)
}

func TestCodeRepo_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := sqlstore.NewCodeRepo(openTestDB(t))
	require.NoError(t, repo.Create(ctx, newCode("a")))
	late := newCode("b")
	late.ExpiresAt = baseTime.Add(time.Hour)
	require.NoError(t, repo.Create(ctx, late))

	n, err := repo.DeleteExpired(ctx, baseTime.Add(30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestTokenRepo(t *testing.T) {
	ctx := context.Background()
	repo := sqlstore.NewTokenRepo(openTestDB(t))

	access := &token.AccessToken{
		ID: "at-1", TokenHash: "ah-1", ClientID: "client-a", UserID: "user-1",
		Scopes: []string{"openid"}, CreatedAt: baseTime, ExpiresAt: baseTime.Add(time.Hour),
	}
	require.NoError(t, repo.CreateAccessToken(ctx, access))
	require.ErrorIs(t, repo.CreateAccessToken(ctx, access), errors.ErrConflict)

	got, err := repo.GetAccessTokenByHash(ctx, "ah-1")
	require.NoError(t, err)
	require.Equal(t, "at-1", got.ID)
	require.True(t, got.Active(baseTime))
	_, err = repo.GetAccessTokenByID(ctx, "nope")
	require.ErrorIs(t, err, errors.ErrNotFound)

	refresh := &token.RefreshToken{
		ID: "rt-1", TokenHash: "rh-1", AccessTokenID: "at-1", ClientID: "client-a", UserID: "user-1",
		Scopes: []string{"openid"}, CreatedAt: baseTime, ExpiresAt: baseTime.Add(24 * time.Hour),
	}
	require.NoError(t, repo.CreateRefreshToken(ctx, refresh))
	require.NoError(t, repo.UpdateRefreshTokenAccess(ctx, "rt-1", "at-2"))
	require.ErrorIs(t, repo.UpdateRefreshTokenAccess(ctx, "nope", "at-2"), errors.ErrNotFound)

	rt, err := repo.GetRefreshTokenByHash(ctx, "rh-1")
	require.NoError(t, err)
	require.Equal(t, "at-2", rt.AccessTokenID)

	require.NoError(t, repo.RevokeRefreshTokensForAccess(ctx, "at-2", baseTime.Add(time.Minute)))
	rt, err = repo.GetRefreshTokenByHash(ctx, "rh-1")
	require.NoError(t, err)
	require.NotNil(t, rt.RevokedAt)

	require.NoError(t, repo.RevokeAccessToken(ctx, "at-1", baseTime.Add(time.Minute)))
	require.NoError(t, repo.RevokeAccessToken(ctx, "at-1", baseTime.Add(time.Hour)))
	got, err = repo.GetAccessTokenByID(ctx, "at-1")
	require.NoError(t, err)
	require.True(t, baseTime.Add(time.Minute).Equal(*got.RevokedAt))
	require.ErrorIs(t, repo.RevokeAccessToken(ctx, "nope", baseTime), errors.ErrNotFound)
	require.ErrorIs(t, repo.RevokeRefreshToken(ctx, "nope", baseTime), errors.ErrNotFound)
}

func TestTokenRepo_RotateRefreshToken(t *testing.T) {
	ctx := context.Background()
	repo := sqlstore.NewTokenRepo(openTestDB(t))
	require.NoError(t, repo.CreateRefreshToken(ctx, &token.RefreshToken{
		ID: "rt-1", TokenHash: "rh-1", AccessTokenID: "at-1", ClientID: "client-a", UserID: "user-1",
		Scopes: []string{"openid"}, CreatedAt: baseTime, ExpiresAt: baseTime.Add(24 * time.Hour),
	}))

	claimed, err := repo.RotateRefreshToken(ctx, "rt-1", baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = repo.RotateRefreshToken(ctx, "rt-1", baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, claimed, "a second rotation must lose")

	rt, err := repo.GetRefreshTokenByHash(ctx, "rh-1")
	require.NoError(t, err)
	require.True(t, baseTime.Add(time.Minute).Equal(*rt.RevokedAt))

	claimed, err = repo.RotateRefreshToken(ctx, "nope", baseTime)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestTokenRepo_RevokeForClient(t *testing.T) {
	ctx := context.Background()
	repo := sqlstore.NewTokenRepo(openTestDB(t))

	for _, tc := range []struct{ id, client, user string }{
		{"at-1", "client-a", "user-1"},
		{"at-2", "client-a", "user-2"},
		{"at-3", "client-b", "user-1"},
	} {
		require.NoError(t, repo.CreateAccessToken(ctx, &token.AccessToken{
			ID: tc.id, TokenHash: "h-" + tc.id, ClientID: tc.client, UserID: tc.user,
			CreatedAt: baseTime, ExpiresAt: baseTime.Add(time.Hour),
		}))
	}

	require.NoError(t, repo.RevokeForClient(ctx, "client-a", "user-1", baseTime))
	revoked := func(id string) bool {
		tok, err := repo.GetAccessTokenByID(ctx, id)
		require.NoError(t, err)
		return tok.RevokedAt != nil
	}
	require.True(t, revoked("at-1"))
	require.False(t, revoked("at-2"))

	require.NoError(t, repo.RevokeForClient(ctx, "client-a", "", baseTime))
	require.True(t, revoked("at-2"))
	require.False(t, revoked("at-3"))

	n, err := repo.DeleteExpired(ctx, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}
