package token

import (
	"context"
	"time"
)

// Repo persists access and refresh tokens. Lookups by unknown hash or id
// return errors.ErrNotFound.
type Repo interface {
	CreateAccessToken(ctx context.Context, t *AccessToken) error
	GetAccessTokenByHash(ctx context.Context, tokenHash string) (*AccessToken, error)
	GetAccessTokenByID(ctx context.Context, id string) (*AccessToken, error)
	RevokeAccessToken(ctx context.Context, id string, at time.Time) error

	CreateRefreshToken(ctx context.Context, t *RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	UpdateRefreshTokenAccess(ctx context.Context, id, accessTokenID string) error
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) error
	// RotateRefreshToken revokes the token only if it is still unrevoked and
	// reports whether this call revoked it. Concurrent callers see at most
	// one true; unknown ids report false.
	RotateRefreshToken(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeRefreshTokensForAccess(ctx context.Context, accessTokenID string, at time.Time) error

	// RevokeForClient revokes every live token for the client. An empty
	// userID matches all users.
	RevokeForClient(ctx context.Context, clientID, userID string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
