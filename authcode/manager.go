package authcode

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-oidc-provider/codec"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

const (
	defaultCodeTTL   = 10 * time.Minute
	defaultCodeBytes = 32
)

// IssueRequest carries everything bound to a new code.
type IssueRequest struct {
	ClientID            string
	UserID              string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod oauth2.CodeMethodType
	Nonce               string
}

// Manager issues codes and consumes them exactly once.
type Manager struct {
	repo      Repo
	codec     *codec.Codec
	ttl       time.Duration
	codeBytes int
	nowFunc   func() time.Time
}

type ManagerOption func(*Manager)

// WithTTL sets how long an issued code stays redeemable.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithCodeBytes sets the random byte length of generated codes.
func WithCodeBytes(n int) ManagerOption {
	return func(m *Manager) {
		m.codeBytes = n
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager builds a code manager storing code digests in repo.
func NewManager(repo Repo, c *codec.Codec, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[authcode.NewManager] code repo is required")
	}
	if c == nil {
		return nil, errors.New("[authcode.NewManager] codec is required")
	}
	m := &Manager{
		repo:      repo,
		codec:     c,
		ttl:       defaultCodeTTL,
		codeBytes: defaultCodeBytes,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Issue stores a new code and returns its plaintext. A challenge without a
// method defaults to plain (RFC 7636 §4.3).
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (string, error) {
	if req.ClientID == "" || req.UserID == "" || req.RedirectURI == "" {
		return "", errors.Wrap(oautherrors.ErrInvalidRequest, "[Issue] client, user and redirect URI are required")
	}
	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" {
		if method == "" {
			method = oauth2.CodeMethodTypePlain
		}
		if !method.Valid() {
			return "", errors.Wrapf(oautherrors.ErrInvalidRequest, "[Issue] unsupported code_challenge_method %q", method)
		}
	} else {
		method = ""
	}

	code, err := m.codec.GenerateToken(m.codeBytes)
	if err != nil {
		return "", errors.Wrap(err, "[Issue] generating code")
	}

	now := m.nowFunc().UTC()
	record := &AuthorizationCode{
		CodeHash:            m.codec.Digest(code),
		ClientID:            req.ClientID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scopes:              oauth2.Normalize(req.Scopes),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		Nonce:               req.Nonce,
		CreatedAt:           now,
		ExpiresAt:           now.Add(m.ttl),
	}
	if err := m.repo.Create(ctx, record); err != nil {
		return "", errors.Wrap(err, "[Issue] storing code")
	}
	return code, nil
}

// VerifyAndConsume redeems code for clientID. It fails with ErrInvalidGrant
// for unknown, used, expired or foreign codes, ErrRedirectMismatch when
// redirectURI differs from the one recorded, and ErrPKCERequired or
// ErrPKCEMismatch when the recorded challenge is not satisfied. A failed
// check leaves the code unconsumed.
func (m *Manager) VerifyAndConsume(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*AuthorizationCode, error) {
	if code == "" {
		return nil, errors.Wrap(oautherrors.ErrInvalidGrant, "[VerifyAndConsume] code is required")
	}
	now := m.nowFunc().UTC()

	record, err := m.repo.Consume(ctx, m.codec.Digest(code), now, func(c *AuthorizationCode) error {
		switch {
		case c.Used():
			return errors.Wrap(oautherrors.ErrInvalidGrant, "code already used")
		case c.Expired(now):
			return errors.Wrap(oautherrors.ErrInvalidGrant, "code expired")
		case c.ClientID != clientID:
			return errors.Wrap(oautherrors.ErrInvalidGrant, "code was issued to another client")
		case c.RedirectURI != redirectURI:
			return oautherrors.ErrRedirectMismatch
		}
		if c.CodeChallenge == "" {
			return nil
		}
		if codeVerifier == "" {
			return oautherrors.ErrPKCERequired
		}
		if !codec.PKCEVerify(codeVerifier, c.CodeChallenge, c.CodeChallengeMethod) {
			return oautherrors.ErrPKCEMismatch
		}
		return nil
	})
	if errors.Is(err, oautherrors.ErrNotFound) {
		return nil, errors.Wrap(oautherrors.ErrInvalidGrant, "[VerifyAndConsume] unknown code")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[VerifyAndConsume]")
	}
	return record, nil
}

// DeleteExpired removes codes that expired before the given time.
func (m *Manager) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return m.repo.DeleteExpired(ctx, before)
}
