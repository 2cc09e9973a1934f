package users

import "context"

// Repo is the port onto the external user store. GetByID returns
// errors.ErrUserNotFound for unknown ids.
type Repo interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
