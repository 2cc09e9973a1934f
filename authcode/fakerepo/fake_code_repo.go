package fakecoderepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-oidc-provider/authcode"
	"github.com/jrsteele09/go-oidc-provider/internal/errors"
)

var _ authcode.Repo = (*FakeCodeRepo)(nil)

type FakeCodeRepo struct {
	codes map[string]*authcode.AuthorizationCode
	lock  sync.Mutex
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{codes: make(map[string]*authcode.AuthorizationCode)}
}

func (r *FakeCodeRepo) Create(_ context.Context, code *authcode.AuthorizationCode) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, exists := r.codes[code.CodeHash]; exists {
		return errors.ErrConflict
	}
	r.codes[code.CodeHash] = copyCode(code)
	return nil
}

func (r *FakeCodeRepo) Consume(_ context.Context, codeHash string, now time.Time, check authcode.CheckFunc) (*authcode.AuthorizationCode, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	stored, ok := r.codes[codeHash]
	if !ok {
		return nil, errors.ErrNotFound
	}
	if err := check(copyCode(stored)); err != nil {
		return nil, err
	}
	usedAt := now
	stored.UsedAt = &usedAt
	return copyCode(stored), nil
}

func (r *FakeCodeRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var n int64
	for k, c := range r.codes {
		if c.ExpiresAt.Before(before) {
			delete(r.codes, k)
			n++
		}
	}
	return n, nil
}

func copyCode(c *authcode.AuthorizationCode) *authcode.AuthorizationCode {
	out := *c
	out.Scopes = append([]string(nil), c.Scopes...)
	if c.UsedAt != nil {
		used := *c.UsedAt
		out.UsedAt = &used
	}
	return &out
}
