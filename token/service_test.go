package token_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-oidc-provider/codec"
	"github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
	"github.com/jrsteele09/go-oidc-provider/token"
	faketokenrepo "github.com/jrsteele09/go-oidc-provider/token/fakerepo"
)

const (
	testDigestKey = "0123456789abcdef0123456789abcdef"
	testClientID  = "client-1"
	testUserID    = "user-1"
)

var grantedScopes = []string{"openid", "profile", "email"}

type testFixture struct {
	repo    *faketokenrepo.FakeTokenRepo
	service *token.Service
	now     time.Time
}

func setupTestFixture(t *testing.T, options ...token.ServiceOption) *testFixture {
	t.Helper()
	c, err := codec.New([]byte(testDigestKey), codec.WithCost(bcrypt.MinCost))
	require.NoError(t, err)

	f := &testFixture{
		repo: faketokenrepo.NewFakeTokenRepo(),
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	options = append([]token.ServiceOption{token.WithNowFunc(func() time.Time { return f.now })}, options...)
	f.service, err = token.NewService(f.repo, c, options...)
	require.NoError(t, err)
	return f
}

// grant issues an access token and its refresh token.
func (f *testFixture) grant(t *testing.T) (token.Issued, string) {
	t.Helper()
	ctx := context.Background()
	issued, err := f.service.IssueAccessToken(ctx, testClientID, testUserID, grantedScopes)
	require.NoError(t, err)
	refresh, err := f.service.IssueRefreshToken(ctx, issued.ID, testClientID, testUserID, grantedScopes)
	require.NoError(t, err)
	return issued, refresh
}

func TestService_IssueAndVerify(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	issued, _ := f.grant(t)

	require.Len(t, issued.Token, 64)
	require.Equal(t, int64(3600), issued.ExpiresIn)

	at, err := f.service.VerifyAccessToken(ctx, issued.Token)
	require.NoError(t, err)
	require.Equal(t, testUserID, at.UserID)
	require.Equal(t, grantedScopes, at.Scopes)
	require.NotEqual(t, issued.Token, at.TokenHash)

	_, err = f.service.VerifyAccessToken(ctx, "garbage")
	require.ErrorIs(t, err, errors.ErrInvalidToken)

	f.now = f.now.Add(time.Hour)
	_, err = f.service.VerifyAccessToken(ctx, issued.Token)
	require.ErrorIs(t, err, errors.ErrTokenExpired)
}

func TestService_RefreshRotate(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, refresh := f.grant(t)

	result, err := f.service.Refresh(ctx, refresh, testClientID, nil)
	require.NoError(t, err)
	require.Equal(t, grantedScopes, result.AccessToken.Scopes)
	require.NotEmpty(t, result.RefreshToken)
	require.NotEqual(t, refresh, result.RefreshToken)

	_, err = f.service.Refresh(ctx, refresh, testClientID, nil)
	require.ErrorIs(t, err, errors.ErrInvalidGrant, "rotated refresh token must be dead")

	_, err = f.service.Refresh(ctx, result.RefreshToken, testClientID, nil)
	require.NoError(t, err)
}

// barrierRepo holds each refresh token lookup until every expected lookup
// has arrived, so concurrent refreshes all load the token before any
// revokes it.
type barrierRepo struct {
	*faketokenrepo.FakeTokenRepo
	arrived sync.WaitGroup
}

func (r *barrierRepo) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*token.RefreshToken, error) {
	rt, err := r.FakeTokenRepo.GetRefreshTokenByHash(ctx, tokenHash)
	r.arrived.Done()
	r.arrived.Wait()
	return rt, err
}

func TestService_RefreshRotateConcurrent(t *testing.T) {
	const parties = 4
	f := setupTestFixture(t)
	ctx := context.Background()
	_, refresh := f.grant(t)

	c, err := codec.New([]byte(testDigestKey), codec.WithCost(bcrypt.MinCost))
	require.NoError(t, err)
	repo := &barrierRepo{FakeTokenRepo: f.repo}
	repo.arrived.Add(parties)
	service, err := token.NewService(repo, c, token.WithNowFunc(func() time.Time { return f.now }))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		errs      = make(chan error, parties)
	)
	for range parties {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.Refresh(ctx, refresh, testClientID, nil); err != nil {
				errs <- err
				return
			}
			succeeded.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	require.Equal(t, int32(1), succeeded.Load())
	for err := range errs {
		require.ErrorIs(t, err, errors.ErrInvalidGrant)
	}
}

func TestService_RefreshRepoint(t *testing.T) {
	f := setupTestFixture(t, token.WithRotation(token.RotationRepoint))
	ctx := context.Background()
	_, refresh := f.grant(t)

	first, err := f.service.Refresh(ctx, refresh, testClientID, nil)
	require.NoError(t, err)
	require.Equal(t, refresh, first.RefreshToken)

	second, err := f.service.Refresh(ctx, refresh, testClientID, nil)
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken.Token, second.AccessToken.Token)

	// the refresh token now follows the latest access token
	found, err := f.service.Revoke(ctx, second.AccessToken.Token, "")
	require.NoError(t, err)
	require.True(t, found)
	_, err = f.service.Refresh(ctx, refresh, testClientID, nil)
	require.ErrorIs(t, err, errors.ErrInvalidGrant)
}

func TestService_RefreshScopes(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	t.Run("subset", func(t *testing.T) {
		_, refresh := f.grant(t)
		result, err := f.service.Refresh(ctx, refresh, testClientID, []string{"openid"})
		require.NoError(t, err)
		require.Equal(t, []string{"openid"}, result.AccessToken.Scopes)
	})

	t.Run("superset rejected", func(t *testing.T) {
		_, refresh := f.grant(t)
		_, err := f.service.Refresh(ctx, refresh, testClientID, []string{"openid", "offline_access"})
		require.ErrorIs(t, err, errors.ErrInvalidScope)
	})
}

func TestService_RefreshRejects(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, refresh := f.grant(t)

	_, err := f.service.Refresh(ctx, refresh, "client-2", nil)
	require.ErrorIs(t, err, errors.ErrInvalidGrant)

	_, err = f.service.Refresh(ctx, "unknown", testClientID, nil)
	require.ErrorIs(t, err, errors.ErrInvalidGrant)

	f.now = f.now.Add(31 * 24 * time.Hour)
	_, err = f.service.Refresh(ctx, refresh, testClientID, nil)
	require.ErrorIs(t, err, errors.ErrInvalidGrant)
}

func TestService_RefreshRotationFailureKeepsAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, refresh := f.grant(t)

	f.repo.FailRefreshAdd = errors.ErrInternal
	result, err := f.service.Refresh(ctx, refresh, testClientID, nil)
	require.NoError(t, err)
	require.Empty(t, result.RefreshToken)

	_, err = f.service.VerifyAccessToken(ctx, result.AccessToken.Token)
	require.NoError(t, err)
}

func TestService_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("access token cascades to refresh", func(t *testing.T) {
		f := setupTestFixture(t)
		issued, refresh := f.grant(t)

		found, err := f.service.Revoke(ctx, issued.Token, "")
		require.NoError(t, err)
		require.True(t, found)

		_, err = f.service.VerifyAccessToken(ctx, issued.Token)
		require.ErrorIs(t, err, errors.ErrTokenRevoked)
		_, err = f.service.Refresh(ctx, refresh, testClientID, nil)
		require.ErrorIs(t, err, errors.ErrInvalidGrant)
	})

	t.Run("refresh token takes its access token with it", func(t *testing.T) {
		f := setupTestFixture(t)
		issued, refresh := f.grant(t)

		found, err := f.service.Revoke(ctx, refresh, oauth2.RefreshTokenHint)
		require.NoError(t, err)
		require.True(t, found)

		_, err = f.service.VerifyAccessToken(ctx, issued.Token)
		require.ErrorIs(t, err, errors.ErrTokenRevoked)
	})

	t.Run("unknown and repeated", func(t *testing.T) {
		f := setupTestFixture(t)
		issued, _ := f.grant(t)

		found, err := f.service.Revoke(ctx, "garbage", "")
		require.NoError(t, err)
		require.False(t, found)

		for i := 0; i < 2; i++ {
			found, err = f.service.Revoke(ctx, issued.Token, "")
			require.NoError(t, err)
			require.True(t, found)
		}
	})
}

func TestService_Introspect(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	issued, refresh := f.grant(t)

	got, err := f.service.Introspect(ctx, issued.Token)
	require.NoError(t, err)
	require.True(t, got.Active)
	require.Equal(t, "openid profile email", got.Scope)
	require.Equal(t, testClientID, got.ClientID)
	require.Equal(t, testUserID, got.Sub)
	require.Equal(t, "Bearer", got.TokenType)
	require.Equal(t, f.now.Add(time.Hour).Unix(), got.Exp)

	got, err = f.service.Introspect(ctx, refresh)
	require.NoError(t, err)
	require.True(t, got.Active)
	require.Equal(t, "refresh_token", got.TokenType)

	_, err = f.service.Revoke(ctx, issued.Token, "")
	require.NoError(t, err)
	got, err = f.service.Introspect(ctx, issued.Token)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.Empty(t, got.Sub)

	got, err = f.service.Introspect(ctx, "garbage")
	require.NoError(t, err)
	require.False(t, got.Active)
}

func TestService_RevokeForClient(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	issued, _ := f.grant(t)
	other, err := f.service.IssueAccessToken(ctx, "client-2", testUserID, grantedScopes)
	require.NoError(t, err)

	require.NoError(t, f.service.RevokeForClient(ctx, testClientID, testUserID))

	_, err = f.service.VerifyAccessToken(ctx, issued.Token)
	require.ErrorIs(t, err, errors.ErrTokenRevoked)
	_, err = f.service.VerifyAccessToken(ctx, other.Token)
	require.NoError(t, err)
}

func TestNewService_UnknownRotation(t *testing.T) {
	c, err := codec.New([]byte(testDigestKey))
	require.NoError(t, err)
	_, err = token.NewService(faketokenrepo.NewFakeTokenRepo(), c, token.WithRotation("sometimes"))
	require.Error(t, err)
}
