package sqlstore

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/clients"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
)

var _ clients.Repo = (*ClientRepo)(nil)

type ClientRepo struct {
	db *DB
}

func NewClientRepo(db *DB) *ClientRepo {
	return &ClientRepo{db: db}
}

const clientColumns = `id, client_id, secret_hash, name, description, redirect_uris, allowed_scopes,
	logo_url, website_url, is_trusted, owner_user_id, created_at, updated_at`

// Upsert keeps the stored id and created_at of an existing client.
func (r *ClientRepo) Upsert(ctx context.Context, client *clients.Client) error {
	redirects, err := encodeList(client.RedirectURIs)
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.Upsert] encode redirect URIs")
	}
	scopes, err := encodeList(client.AllowedScopes)
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.Upsert] encode scopes")
	}

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		var createdAt int64
		err := tx.QueryRowContext(ctx,
			r.db.rebind(`SELECT id, created_at FROM oauth_clients WHERE client_id = ?`+r.db.lockClause()),
			client.ClientID,
		).Scan(&id, &createdAt)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if client.ID == "" {
				client.ID = uuid.New().String()
			}
			_, err = r.db.exec(ctx, tx, `
				INSERT INTO oauth_clients (`+clientColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				client.ID, client.ClientID, client.SecretHash, client.Name, client.Description,
				redirects, scopes, client.LogoURL, client.WebsiteURL, client.IsTrusted,
				client.OwnerUserID, toNanos(client.CreatedAt), toNanos(client.UpdatedAt),
			)
			if isUniqueViolation(err) {
				return oautherrors.ErrConflict
			}
			return errors.Wrap(err, "[ClientRepo.Upsert] insert")
		case err != nil:
			return errors.Wrap(err, "[ClientRepo.Upsert] lookup")
		}

		client.ID = id
		client.CreatedAt = fromNanos(createdAt)
		_, err = r.db.exec(ctx, tx, `
			UPDATE oauth_clients SET secret_hash = ?, name = ?, description = ?, redirect_uris = ?,
				allowed_scopes = ?, logo_url = ?, website_url = ?, is_trusted = ?, owner_user_id = ?,
				updated_at = ?
			WHERE client_id = ?`,
			client.SecretHash, client.Name, client.Description, redirects, scopes,
			client.LogoURL, client.WebsiteURL, client.IsTrusted, client.OwnerUserID,
			toNanos(client.UpdatedAt), client.ClientID,
		)
		return errors.Wrap(err, "[ClientRepo.Upsert] update")
	})
}

func (r *ClientRepo) GetByClientID(ctx context.Context, clientID string) (*clients.Client, error) {
	row := r.db.db.QueryRowContext(ctx,
		r.db.rebind(`SELECT `+clientColumns+` FROM oauth_clients WHERE client_id = ?`), clientID)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oautherrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[ClientRepo.GetByClientID]")
	}
	return c, nil
}

func (r *ClientRepo) List(ctx context.Context, ownerUserID string, offset, limit int) ([]*clients.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM oauth_clients`
	var args []any
	if ownerUserID != "" {
		query += ` WHERE owner_user_id = ?`
		args = append(args, ownerUserID)
	}
	query += ` ORDER BY created_at, client_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	} else if offset > 0 {
		// Both dialects need a LIMIT before OFFSET.
		query += ` LIMIT ?`
		args = append(args, int64(1)<<62)
	}
	if offset > 0 {
		query += ` OFFSET ?`
		args = append(args, offset)
	}

	rows, err := r.db.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "[ClientRepo.List]")
	}
	defer rows.Close()

	out := []*clients.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[ClientRepo.List] scan")
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "[ClientRepo.List]")
}

func (r *ClientRepo) Delete(ctx context.Context, clientID string) error {
	res, err := r.db.exec(ctx, r.db.db, `DELETE FROM oauth_clients WHERE client_id = ?`, clientID)
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.Delete]")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return oautherrors.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*clients.Client, error) {
	var (
		c                    clients.Client
		redirects, scopes    string
		createdAt, updatedAt int64
	)
	err := row.Scan(&c.ID, &c.ClientID, &c.SecretHash, &c.Name, &c.Description, &redirects, &scopes,
		&c.LogoURL, &c.WebsiteURL, &c.IsTrusted, &c.OwnerUserID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if c.RedirectURIs, err = decodeList(redirects); err != nil {
		return nil, err
	}
	if c.AllowedScopes, err = decodeList(scopes); err != nil {
		return nil, err
	}
	c.CreatedAt = fromNanos(createdAt)
	c.UpdatedAt = fromNanos(updatedAt)
	return &c, nil
}
