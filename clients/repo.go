package clients

import "context"

// Repo persists clients. GetByClientID and Delete return errors.ErrNotFound
// for unknown clients. List with an empty owner returns every client; a
// limit <= 0 means no limit.
type Repo interface {
	Upsert(ctx context.Context, client *Client) error
	GetByClientID(ctx context.Context, clientID string) (*Client, error)
	List(ctx context.Context, ownerUserID string, offset, limit int) ([]*Client, error)
	Delete(ctx context.Context, clientID string) error
}
