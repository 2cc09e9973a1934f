package consent

import (
	"context"
	"time"
)

// Repo persists consents. Get returns errors.ErrNotFound when no row
// exists. Upsert inserts or replaces the scope set of the (user, client) row.
type Repo interface {
	Get(ctx context.Context, userID, clientID string) (*Consent, error)
	Upsert(ctx context.Context, userID, clientID string, scopes []string, at time.Time) (*Consent, error)
	Delete(ctx context.Context, userID, clientID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*Consent, error)
	DeleteByClient(ctx context.Context, clientID string) error
}
