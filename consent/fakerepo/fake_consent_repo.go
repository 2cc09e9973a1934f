package fakeconsentrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-oidc-provider/consent"
	"github.com/jrsteele09/go-oidc-provider/internal/errors"
)

var _ consent.Repo = (*FakeConsentRepo)(nil)

type key struct {
	userID   string
	clientID string
}

type FakeConsentRepo struct {
	consents map[key]*consent.Consent
	lock     sync.RWMutex
}

func NewFakeConsentRepo() *FakeConsentRepo {
	return &FakeConsentRepo{consents: make(map[key]*consent.Consent)}
}

func (r *FakeConsentRepo) Get(_ context.Context, userID, clientID string) (*consent.Consent, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.consents[key{userID, clientID}]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return copyConsent(c), nil
}

func (r *FakeConsentRepo) Upsert(_ context.Context, userID, clientID string, scopes []string, at time.Time) (*consent.Consent, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{userID, clientID}
	c, ok := r.consents[k]
	if !ok {
		c = &consent.Consent{UserID: userID, ClientID: clientID, CreatedAt: at}
		r.consents[k] = c
	}
	c.Scopes = append([]string(nil), scopes...)
	c.UpdatedAt = at
	return copyConsent(c), nil
}

func (r *FakeConsentRepo) Delete(_ context.Context, userID, clientID string) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	k := key{userID, clientID}
	_, ok := r.consents[k]
	delete(r.consents, k)
	return ok, nil
}

func (r *FakeConsentRepo) ListByUser(_ context.Context, userID string) ([]*consent.Consent, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := []*consent.Consent{}
	for k, c := range r.consents {
		if k.userID == userID {
			out = append(out, copyConsent(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func (r *FakeConsentRepo) DeleteByClient(_ context.Context, clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for k := range r.consents {
		if k.clientID == clientID {
			delete(r.consents, k)
		}
	}
	return nil
}

func copyConsent(c *consent.Consent) *consent.Consent {
	out := *c
	out.Scopes = append([]string(nil), c.Scopes...)
	return &out
}
