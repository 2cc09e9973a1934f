package authcode

import (
	"context"
	"time"
)

// CheckFunc validates a locked, unconsumed-or-consumed record before it is
// marked used. Returning an error aborts the consume and leaves the record
// untouched.
type CheckFunc func(code *AuthorizationCode) error

// Repo persists authorization codes.
//
// Consume must be atomic: it loads the record for codeHash, runs check,
// and on success sets UsedAt to now, all without another Consume of the
// same code interleaving. Unknown codes return errors.ErrNotFound.
type Repo interface {
	Create(ctx context.Context, code *AuthorizationCode) error
	Consume(ctx context.Context, codeHash string, now time.Time, check CheckFunc) (*AuthorizationCode, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
