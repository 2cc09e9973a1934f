package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/authcode"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

var _ authcode.Repo = (*CodeRepo)(nil)

type CodeRepo struct {
	db *DB
}

func NewCodeRepo(db *DB) *CodeRepo {
	return &CodeRepo{db: db}
}

const codeColumns = `code_hash, client_id, user_id, redirect_uri, scopes, code_challenge,
	code_challenge_method, nonce, created_at, expires_at, used_at`

func (r *CodeRepo) Create(ctx context.Context, code *authcode.AuthorizationCode) error {
	scopes, err := encodeList(code.Scopes)
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.Create] encode scopes")
	}
	_, err = r.db.exec(ctx, r.db.db, `
		INSERT INTO oauth_authorization_codes (`+codeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.CodeHash, code.ClientID, code.UserID, code.RedirectURI, scopes, code.CodeChallenge,
		string(code.CodeChallengeMethod), code.Nonce, toNanos(code.CreatedAt), toNanos(code.ExpiresAt),
		toNullNanos(code.UsedAt),
	)
	if isUniqueViolation(err) {
		return oautherrors.ErrConflict
	}
	return errors.Wrap(err, "[CodeRepo.Create]")
}

// Consume locks the row, runs check and marks the code used in one
// transaction. The conditional UPDATE catches a concurrent consumer that
// slipped past the lock.
func (r *CodeRepo) Consume(ctx context.Context, codeHash string, now time.Time, check authcode.CheckFunc) (*authcode.AuthorizationCode, error) {
	var consumed *authcode.AuthorizationCode
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			r.db.rebind(`SELECT `+codeColumns+` FROM oauth_authorization_codes WHERE code_hash = ?`+r.db.lockClause()),
			codeHash)
		code, err := scanCode(row)
		if errors.Is(err, sql.ErrNoRows) {
			return oautherrors.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "[CodeRepo.Consume] lookup")
		}
		if err := check(code); err != nil {
			return err
		}

		res, err := r.db.exec(ctx, tx,
			`UPDATE oauth_authorization_codes SET used_at = ? WHERE code_hash = ? AND used_at IS NULL`,
			toNanos(now), codeHash)
		if err != nil {
			return errors.Wrap(err, "[CodeRepo.Consume] mark used")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrap(oautherrors.ErrInvalidGrant, "code already used")
		}
		usedAt := now
		code.UsedAt = &usedAt
		consumed = code
		return nil
	})
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

func (r *CodeRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.exec(ctx, r.db.db,
		`DELETE FROM oauth_authorization_codes WHERE expires_at < ?`, toNanos(before))
	if err != nil {
		return 0, errors.Wrap(err, "[CodeRepo.DeleteExpired]")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "[CodeRepo.DeleteExpired]")
}

func scanCode(row rowScanner) (*authcode.AuthorizationCode, error) {
	var (
		c                    authcode.AuthorizationCode
		scopes, method       string
		createdAt, expiresAt int64
		usedAt               sql.NullInt64
	)
	err := row.Scan(&c.CodeHash, &c.ClientID, &c.UserID, &c.RedirectURI, &scopes, &c.CodeChallenge,
		&method, &c.Nonce, &createdAt, &expiresAt, &usedAt)
	if err != nil {
		return nil, err
	}
	if c.Scopes, err = decodeList(scopes); err != nil {
		return nil, err
	}
	c.CodeChallengeMethod = oauth2.CodeMethodType(method)
	c.CreatedAt = fromNanos(createdAt)
	c.ExpiresAt = fromNanos(expiresAt)
	c.UsedAt = fromNullNanos(usedAt)
	return &c, nil
}
