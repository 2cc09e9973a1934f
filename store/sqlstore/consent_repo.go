package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/consent"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
)

var _ consent.Repo = (*ConsentRepo)(nil)

type ConsentRepo struct {
	db *DB
}

func NewConsentRepo(db *DB) *ConsentRepo {
	return &ConsentRepo{db: db}
}

func (r *ConsentRepo) Get(ctx context.Context, userID, clientID string) (*consent.Consent, error) {
	row := r.db.db.QueryRowContext(ctx, r.db.rebind(`
		SELECT user_id, client_id, scopes, created_at, updated_at
		FROM oauth_consents WHERE user_id = ? AND client_id = ?`), userID, clientID)
	c, err := scanConsent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oautherrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[ConsentRepo.Get]")
	}
	return c, nil
}

func (r *ConsentRepo) Upsert(ctx context.Context, userID, clientID string, scopes []string, at time.Time) (*consent.Consent, error) {
	encoded, err := encodeList(scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[ConsentRepo.Upsert] encode scopes")
	}
	_, err = r.db.exec(ctx, r.db.db, `
		INSERT INTO oauth_consents (user_id, client_id, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, client_id)
		DO UPDATE SET scopes = excluded.scopes, updated_at = excluded.updated_at`,
		userID, clientID, encoded, toNanos(at), toNanos(at),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[ConsentRepo.Upsert]")
	}
	return r.Get(ctx, userID, clientID)
}

func (r *ConsentRepo) Delete(ctx context.Context, userID, clientID string) (bool, error) {
	res, err := r.db.exec(ctx, r.db.db,
		`DELETE FROM oauth_consents WHERE user_id = ? AND client_id = ?`, userID, clientID)
	if err != nil {
		return false, errors.Wrap(err, "[ConsentRepo.Delete]")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "[ConsentRepo.Delete]")
}

func (r *ConsentRepo) ListByUser(ctx context.Context, userID string) ([]*consent.Consent, error) {
	rows, err := r.db.db.QueryContext(ctx, r.db.rebind(`
		SELECT user_id, client_id, scopes, created_at, updated_at
		FROM oauth_consents WHERE user_id = ? ORDER BY client_id`), userID)
	if err != nil {
		return nil, errors.Wrap(err, "[ConsentRepo.ListByUser]")
	}
	defer rows.Close()

	out := []*consent.Consent{}
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[ConsentRepo.ListByUser] scan")
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "[ConsentRepo.ListByUser]")
}

func (r *ConsentRepo) DeleteByClient(ctx context.Context, clientID string) error {
	_, err := r.db.exec(ctx, r.db.db, `DELETE FROM oauth_consents WHERE client_id = ?`, clientID)
	return errors.Wrap(err, "[ConsentRepo.DeleteByClient]")
}

func scanConsent(row rowScanner) (*consent.Consent, error) {
	var (
		c                    consent.Consent
		scopes               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.UserID, &c.ClientID, &scopes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.Scopes, err = decodeList(scopes); err != nil {
		return nil, err
	}
	c.CreatedAt = fromNanos(createdAt)
	c.UpdatedAt = fromNanos(updatedAt)
	return &c, nil
}
