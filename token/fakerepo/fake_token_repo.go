package faketokenrepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/token"
)

var _ token.Repo = (*FakeTokenRepo)(nil)

type FakeTokenRepo struct {
	access         map[string]*token.AccessToken // id -> token
	accessByHash   map[string]string
	refresh        map[string]*token.RefreshToken
	refreshByHash  map[string]string
	lock           sync.RWMutex
	FailRefreshAdd error
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		access:        make(map[string]*token.AccessToken),
		accessByHash:  make(map[string]string),
		refresh:       make(map[string]*token.RefreshToken),
		refreshByHash: make(map[string]string),
	}
}

func (r *FakeTokenRepo) CreateAccessToken(_ context.Context, t *token.AccessToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, exists := r.accessByHash[t.TokenHash]; exists {
		return errors.ErrConflict
	}
	r.access[t.ID] = copyAccess(t)
	r.accessByHash[t.TokenHash] = t.ID
	return nil
}

func (r *FakeTokenRepo) GetAccessTokenByHash(_ context.Context, tokenHash string) (*token.AccessToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.accessByHash[tokenHash]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return copyAccess(r.access[id]), nil
}

func (r *FakeTokenRepo) GetAccessTokenByID(_ context.Context, id string) (*token.AccessToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.access[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return copyAccess(t), nil
}

func (r *FakeTokenRepo) RevokeAccessToken(_ context.Context, id string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.access[id]
	if !ok {
		return errors.ErrNotFound
	}
	if t.RevokedAt == nil {
		t.RevokedAt = &at
	}
	return nil
}

func (r *FakeTokenRepo) CreateRefreshToken(_ context.Context, t *token.RefreshToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.FailRefreshAdd != nil {
		return r.FailRefreshAdd
	}
	if _, exists := r.refreshByHash[t.TokenHash]; exists {
		return errors.ErrConflict
	}
	r.refresh[t.ID] = copyRefresh(t)
	r.refreshByHash[t.TokenHash] = t.ID
	return nil
}

func (r *FakeTokenRepo) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*token.RefreshToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.refreshByHash[tokenHash]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return copyRefresh(r.refresh[id]), nil
}

func (r *FakeTokenRepo) UpdateRefreshTokenAccess(_ context.Context, id, accessTokenID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.refresh[id]
	if !ok {
		return errors.ErrNotFound
	}
	t.AccessTokenID = accessTokenID
	return nil
}

func (r *FakeTokenRepo) RevokeRefreshToken(_ context.Context, id string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.refresh[id]
	if !ok {
		return errors.ErrNotFound
	}
	if t.RevokedAt == nil {
		t.RevokedAt = &at
	}
	return nil
}

func (r *FakeTokenRepo) RotateRefreshToken(_ context.Context, id string, at time.Time) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.refresh[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	return true, nil
}

func (r *FakeTokenRepo) RevokeRefreshTokensForAccess(_ context.Context, accessTokenID string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, t := range r.refresh {
		if t.AccessTokenID == accessTokenID && t.RevokedAt == nil {
			revokedAt := at
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (r *FakeTokenRepo) RevokeForClient(_ context.Context, clientID, userID string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, t := range r.access {
		if t.ClientID == clientID && (userID == "" || t.UserID == userID) && t.RevokedAt == nil {
			revokedAt := at
			t.RevokedAt = &revokedAt
		}
	}
	for _, t := range r.refresh {
		if t.ClientID == clientID && (userID == "" || t.UserID == userID) && t.RevokedAt == nil {
			revokedAt := at
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (r *FakeTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var n int64
	for id, t := range r.refresh {
		if t.ExpiresAt.Before(before) {
			delete(r.refresh, id)
			delete(r.refreshByHash, t.TokenHash)
			n++
		}
	}
	for id, t := range r.access {
		if t.ExpiresAt.Before(before) {
			delete(r.access, id)
			delete(r.accessByHash, t.TokenHash)
			n++
		}
	}
	return n, nil
}

func copyAccess(t *token.AccessToken) *token.AccessToken {
	out := *t
	out.Scopes = append([]string(nil), t.Scopes...)
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		out.RevokedAt = &at
	}
	return &out
}

func copyRefresh(t *token.RefreshToken) *token.RefreshToken {
	out := *t
	out.Scopes = append([]string(nil), t.Scopes...)
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		out.RevokedAt = &at
	}
	return &out
}

// LiveRefreshTokens counts the user's unrevoked refresh tokens.
func (r *FakeTokenRepo) LiveRefreshTokens(userID string) int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	n := 0
	for _, t := range r.refresh {
		if t.UserID == userID && t.RevokedAt == nil {
			n++
		}
	}
	return n
}
