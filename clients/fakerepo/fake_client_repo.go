package fakeclientrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/internal/errors"
)

var _ clients.Repo = (*FakeClientRepo)(nil)

type FakeClientRepo struct {
	clients map[string]*clients.Client // keyed by ClientID
	lock    sync.RWMutex
}

func NewFakeClientRepo() *FakeClientRepo {
	return &FakeClientRepo{
		clients: make(map[string]*clients.Client),
	}
}

func (r *FakeClientRepo) Upsert(_ context.Context, client *clients.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	if existing, ok := r.clients[client.ClientID]; ok {
		client.ID = existing.ID
		client.CreatedAt = existing.CreatedAt
	}
	r.clients[client.ClientID] = copyClient(client)
	return nil
}

func (r *FakeClientRepo) GetByClientID(_ context.Context, clientID string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return copyClient(client), nil
}

func (r *FakeClientRepo) List(_ context.Context, ownerUserID string, offset, limit int) ([]*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]*clients.Client, 0, len(r.clients))
	for _, c := range r.clients {
		if ownerUserID != "" && c.OwnerUserID != ownerUserID {
			continue
		}
		out = append(out, copyClient(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []*clients.Client{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *FakeClientRepo) Delete(_ context.Context, clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.clients[clientID]; !ok {
		return errors.ErrNotFound
	}
	delete(r.clients, clientID)
	return nil
}

func copyClient(c *clients.Client) *clients.Client {
	out := *c
	out.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	out.AllowedScopes = append([]string(nil), c.AllowedScopes...)
	return &out
}
