package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/token"
)

var _ token.Repo = (*TokenRepo)(nil)

type TokenRepo struct {
	db *DB
}

func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

const (
	accessColumns  = `id, token_hash, client_id, user_id, scopes, created_at, expires_at, revoked_at`
	refreshColumns = `id, token_hash, access_token_id, client_id, user_id, scopes, created_at, expires_at, revoked_at`
)

func (r *TokenRepo) CreateAccessToken(ctx context.Context, t *token.AccessToken) error {
	scopes, err := encodeList(t.Scopes)
	if err != nil {
		return errors.Wrap(err, "[CreateAccessToken] encode scopes")
	}
	_, err = r.db.exec(ctx, r.db.db, `
		INSERT INTO oauth_access_tokens (`+accessColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.ClientID, t.UserID, scopes,
		toNanos(t.CreatedAt), toNanos(t.ExpiresAt), toNullNanos(t.RevokedAt),
	)
	if isUniqueViolation(err) {
		return oautherrors.ErrConflict
	}
	return errors.Wrap(err, "[CreateAccessToken]")
}

func (r *TokenRepo) GetAccessTokenByHash(ctx context.Context, tokenHash string) (*token.AccessToken, error) {
	return r.getAccess(ctx, "token_hash", tokenHash)
}

func (r *TokenRepo) GetAccessTokenByID(ctx context.Context, id string) (*token.AccessToken, error) {
	return r.getAccess(ctx, "id", id)
}

func (r *TokenRepo) getAccess(ctx context.Context, column, value string) (*token.AccessToken, error) {
	row := r.db.db.QueryRowContext(ctx,
		r.db.rebind(`SELECT `+accessColumns+` FROM oauth_access_tokens WHERE `+column+` = ?`), value)
	t, err := scanAccess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oautherrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[getAccess]")
	}
	return t, nil
}

func (r *TokenRepo) RevokeAccessToken(ctx context.Context, id string, at time.Time) error {
	return r.revoke(ctx, "oauth_access_tokens", id, at)
}

func (r *TokenRepo) CreateRefreshToken(ctx context.Context, t *token.RefreshToken) error {
	scopes, err := encodeList(t.Scopes)
	if err != nil {
		return errors.Wrap(err, "[CreateRefreshToken] encode scopes")
	}
	_, err = r.db.exec(ctx, r.db.db, `
		INSERT INTO oauth_refresh_tokens (`+refreshColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.AccessTokenID, t.ClientID, t.UserID, scopes,
		toNanos(t.CreatedAt), toNanos(t.ExpiresAt), toNullNanos(t.RevokedAt),
	)
	if isUniqueViolation(err) {
		return oautherrors.ErrConflict
	}
	return errors.Wrap(err, "[CreateRefreshToken]")
}

func (r *TokenRepo) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*token.RefreshToken, error) {
	row := r.db.db.QueryRowContext(ctx,
		r.db.rebind(`SELECT `+refreshColumns+` FROM oauth_refresh_tokens WHERE token_hash = ?`), tokenHash)
	t, err := scanRefresh(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oautherrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[GetRefreshTokenByHash]")
	}
	return t, nil
}

func (r *TokenRepo) UpdateRefreshTokenAccess(ctx context.Context, id, accessTokenID string) error {
	res, err := r.db.exec(ctx, r.db.db,
		`UPDATE oauth_refresh_tokens SET access_token_id = ? WHERE id = ?`, accessTokenID, id)
	if err != nil {
		return errors.Wrap(err, "[UpdateRefreshTokenAccess]")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return oautherrors.ErrNotFound
	}
	return nil
}

func (r *TokenRepo) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	return r.revoke(ctx, "oauth_refresh_tokens", id, at)
}

func (r *TokenRepo) RotateRefreshToken(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.exec(ctx, r.db.db,
		`UPDATE oauth_refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, toNanos(at), id)
	if err != nil {
		return false, errors.Wrap(err, "[RotateRefreshToken]")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[RotateRefreshToken] rows affected")
	}
	return n == 1, nil
}

func (r *TokenRepo) RevokeRefreshTokensForAccess(ctx context.Context, accessTokenID string, at time.Time) error {
	_, err := r.db.exec(ctx, r.db.db,
		`UPDATE oauth_refresh_tokens SET revoked_at = ? WHERE access_token_id = ? AND revoked_at IS NULL`,
		toNanos(at), accessTokenID)
	return errors.Wrap(err, "[RevokeRefreshTokensForAccess]")
}

func (r *TokenRepo) RevokeForClient(ctx context.Context, clientID, userID string, at time.Time) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"oauth_access_tokens", "oauth_refresh_tokens"} {
			query := `UPDATE ` + table + ` SET revoked_at = ? WHERE client_id = ? AND revoked_at IS NULL`
			args := []any{toNanos(at), clientID}
			if userID != "" {
				query += ` AND user_id = ?`
				args = append(args, userID)
			}
			if _, err := r.db.exec(ctx, tx, query, args...); err != nil {
				return errors.Wrapf(err, "[RevokeForClient] %s", table)
			}
		}
		return nil
	})
}

func (r *TokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"oauth_refresh_tokens", "oauth_access_tokens"} {
			res, err := r.db.exec(ctx, tx, `DELETE FROM `+table+` WHERE expires_at < ?`, toNanos(before))
			if err != nil {
				return errors.Wrapf(err, "[DeleteExpired] %s", table)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// revoke stamps revoked_at once; revoking an already revoked row is a no-op.
func (r *TokenRepo) revoke(ctx context.Context, table, id string, at time.Time) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, r.db.rebind(`SELECT 1 FROM `+table+` WHERE id = ?`), id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return oautherrors.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "[revoke] lookup")
		}
		_, err = r.db.exec(ctx, tx,
			`UPDATE `+table+` SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, toNanos(at), id)
		return errors.Wrap(err, "[revoke] update")
	})
}

func scanAccess(row rowScanner) (*token.AccessToken, error) {
	var (
		t                    token.AccessToken
		scopes               string
		createdAt, expiresAt int64
		revokedAt            sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.TokenHash, &t.ClientID, &t.UserID, &scopes, &createdAt, &expiresAt, &revokedAt)
	if err != nil {
		return nil, err
	}
	if t.Scopes, err = decodeList(scopes); err != nil {
		return nil, err
	}
	t.CreatedAt = fromNanos(createdAt)
	t.ExpiresAt = fromNanos(expiresAt)
	t.RevokedAt = fromNullNanos(revokedAt)
	return &t, nil
}

func scanRefresh(row rowScanner) (*token.RefreshToken, error) {
	var (
		t                    token.RefreshToken
		scopes               string
		createdAt, expiresAt int64
		revokedAt            sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.TokenHash, &t.AccessTokenID, &t.ClientID, &t.UserID, &scopes,
		&createdAt, &expiresAt, &revokedAt)
	if err != nil {
		return nil, err
	}
	if t.Scopes, err = decodeList(scopes); err != nil {
		return nil, err
	}
	t.CreatedAt = fromNanos(createdAt)
	t.ExpiresAt = fromNanos(expiresAt)
	t.RevokedAt = fromNullNanos(revokedAt)
	return &t, nil
}
