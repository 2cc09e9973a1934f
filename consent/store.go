package consent

import (
	"context"
	"time"

	"github.com/pkg/errors"

	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// Store is the consent service used by the authorization flow and the
// self-service endpoints.
type Store struct {
	repo    Repo
	policy  Policy
	nowFunc func() time.Time
}

type StoreOption func(*Store)

// WithPolicy sets how a stored grant is matched against new requests.
func WithPolicy(p Policy) StoreOption {
	return func(s *Store) {
		s.policy = p
	}
}

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func NewStore(repo Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[NewStore] consent repo is required")
	}
	s := &Store{repo: repo, policy: PolicySuperset, nowFunc: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Get returns nil without error when the user never consented.
func (s *Store) Get(ctx context.Context, userID, clientID string) (*Consent, error) {
	c, err := s.repo.Get(ctx, userID, clientID)
	if errors.Is(err, oautherrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[consent.Get]")
	}
	return c, nil
}

// Upsert replaces the user's grant to the client with scopes.
func (s *Store) Upsert(ctx context.Context, userID, clientID string, scopes []string) (*Consent, error) {
	if userID == "" || clientID == "" {
		return nil, oautherrors.ErrInvalidRequest
	}
	c, err := s.repo.Upsert(ctx, userID, clientID, oauth2.Normalize(scopes), s.nowFunc().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "[consent.Upsert]")
	}
	return c, nil
}

// Revoke reports whether a consent existed.
func (s *Store) Revoke(ctx context.Context, userID, clientID string) (bool, error) {
	found, err := s.repo.Delete(ctx, userID, clientID)
	if err != nil {
		return false, errors.Wrap(err, "[consent.Revoke]")
	}
	return found, nil
}

func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Consent, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[consent.ListForUser]")
	}
	return list, nil
}

func (s *Store) DeleteForClient(ctx context.Context, clientID string) error {
	return errors.Wrap(s.repo.DeleteByClient(ctx, clientID), "[consent.DeleteForClient]")
}

// Covers applies the configured policy.
func (s *Store) Covers(c *Consent, requested []string) bool {
	return s.policy.Covers(c, requested)
}

func (s *Store) Policy() Policy {
	return s.policy
}
