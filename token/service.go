package token

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-oidc-provider/codec"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

const (
	defaultAccessTokenExpiry  = time.Hour
	defaultRefreshTokenExpiry = 30 * 24 * time.Hour
	defaultTokenBytes         = 32
)

// Service issues, verifies, refreshes and revokes opaque bearer tokens.
type Service struct {
	repo               Repo
	codec              *codec.Codec
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	tokenBytes         int
	rotation           Rotation
	nowFunc            func() time.Time
}

type ServiceOption func(*Service)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) ServiceOption {
	return func(s *Service) {
		if accessTokenExpiry > 0 {
			s.accessTokenExpiry = accessTokenExpiry
		}
		if refreshTokenExpiry > 0 {
			s.refreshTokenExpiry = refreshTokenExpiry
		}
	}
}

// WithRotation selects how Refresh treats the presented refresh token.
func WithRotation(r Rotation) ServiceOption {
	return func(s *Service) {
		s.rotation = r
	}
}

func WithTokenBytes(n int) ServiceOption {
	return func(s *Service) {
		s.tokenBytes = n
	}
}

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

// NewService builds a token service that rotates refresh tokens by default.
func NewService(repo Repo, c *codec.Codec, options ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[token.NewService] token repo is required")
	}
	if c == nil {
		return nil, errors.New("[token.NewService] codec is required")
	}
	s := &Service{
		repo:               repo,
		codec:              c,
		accessTokenExpiry:  defaultAccessTokenExpiry,
		refreshTokenExpiry: defaultRefreshTokenExpiry,
		tokenBytes:         defaultTokenBytes,
		rotation:           RotationRotate,
		nowFunc:            time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if _, ok := ParseRotation(string(s.rotation)); !ok {
		return nil, errors.Errorf("[token.NewService] unknown rotation %q", s.rotation)
	}
	return s, nil
}

// AccessTokenExpiry is the lifetime given to new access tokens.
func (s *Service) AccessTokenExpiry() time.Duration {
	return s.accessTokenExpiry
}

func (s *Service) IssueAccessToken(ctx context.Context, clientID, userID string, scopes []string) (Issued, error) {
	plaintext, err := s.codec.GenerateToken(s.tokenBytes)
	if err != nil {
		return Issued{}, errors.Wrap(err, "[IssueAccessToken] generating token")
	}
	now := s.nowFunc().UTC()
	at := &AccessToken{
		ID:        uuid.New().String(),
		TokenHash: s.codec.Digest(plaintext),
		ClientID:  clientID,
		UserID:    userID,
		Scopes:    oauth2.Normalize(scopes),
		CreatedAt: now,
		ExpiresAt: now.Add(s.accessTokenExpiry),
	}
	if err := s.repo.CreateAccessToken(ctx, at); err != nil {
		return Issued{}, errors.Wrap(err, "[IssueAccessToken] storing token")
	}
	return Issued{
		Token:     plaintext,
		ID:        at.ID,
		ExpiresIn: int64(s.accessTokenExpiry.Seconds()),
		Scopes:    at.Scopes,
	}, nil
}

func (s *Service) IssueRefreshToken(ctx context.Context, accessTokenID, clientID, userID string, scopes []string) (string, error) {
	plaintext, err := s.codec.GenerateToken(s.tokenBytes)
	if err != nil {
		return "", errors.Wrap(err, "[IssueRefreshToken] generating token")
	}
	now := s.nowFunc().UTC()
	rt := &RefreshToken{
		ID:            uuid.New().String(),
		TokenHash:     s.codec.Digest(plaintext),
		AccessTokenID: accessTokenID,
		ClientID:      clientID,
		UserID:        userID,
		Scopes:        oauth2.Normalize(scopes),
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.refreshTokenExpiry),
	}
	if err := s.repo.CreateRefreshToken(ctx, rt); err != nil {
		return "", errors.Wrap(err, "[IssueRefreshToken] storing token")
	}
	return plaintext, nil
}

// VerifyAccessToken returns the record for a live token. Unknown tokens are
// ErrInvalidToken, revoked ones ErrTokenRevoked and expired ones
// ErrTokenExpired.
func (s *Service) VerifyAccessToken(ctx context.Context, plaintext string) (*AccessToken, error) {
	if plaintext == "" {
		return nil, oautherrors.ErrInvalidToken
	}
	at, err := s.repo.GetAccessTokenByHash(ctx, s.codec.Digest(plaintext))
	if errors.Is(err, oautherrors.ErrNotFound) {
		return nil, oautherrors.ErrInvalidToken
	}
	if err != nil {
		return nil, errors.Wrap(err, "[VerifyAccessToken] loading token")
	}
	if at.RevokedAt != nil {
		return nil, oautherrors.ErrTokenRevoked
	}
	if !s.nowFunc().Before(at.ExpiresAt) {
		return nil, oautherrors.ErrTokenExpired
	}
	return at, nil
}

// Refresh exchanges a refresh token for a new access token. The new token
// carries the original scopes or a requested subset of them.
func (s *Service) Refresh(ctx context.Context, plaintext, clientID string, requestedScopes []string) (*RefreshResult, error) {
	if plaintext == "" {
		return nil, errors.Wrap(oautherrors.ErrInvalidGrant, "[Refresh] refresh_token is required")
	}
	rt, err := s.repo.GetRefreshTokenByHash(ctx, s.codec.Digest(plaintext))
	if errors.Is(err, oautherrors.ErrNotFound) {
		return nil, errors.Wrap(oautherrors.ErrInvalidGrant, "[Refresh] unknown refresh token")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh] loading refresh token")
	}
	now := s.nowFunc().UTC()
	switch {
	case rt.ClientID != clientID:
		return nil, errors.Wrap(oautherrors.ErrInvalidGrant, "[Refresh] refresh token was issued to another client")
	case !rt.Active(now):
		return nil, errors.Wrap(oautherrors.ErrInvalidGrant, "[Refresh] refresh token is revoked or expired")
	}

	scopes := rt.Scopes
	if requested := oauth2.Normalize(requestedScopes); len(requested) > 0 {
		if !oauth2.IsSubset(requested, rt.Scopes) {
			return nil, errors.Wrap(oautherrors.ErrInvalidScope, "[Refresh] requested scope exceeds the original grant")
		}
		scopes = requested
	}

	if s.rotation != RotationRepoint {
		claimed, err := s.repo.RotateRefreshToken(ctx, rt.ID, now)
		if err != nil {
			return nil, errors.Wrap(err, "[Refresh] revoking rotated refresh token")
		}
		if !claimed {
			return nil, errors.Wrap(oautherrors.ErrInvalidGrant, "[Refresh] refresh token was already used")
		}
	}

	issued, err := s.IssueAccessToken(ctx, rt.ClientID, rt.UserID, scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh]")
	}
	result := &RefreshResult{AccessToken: issued, UserID: rt.UserID}

	if s.rotation == RotationRepoint {
		if err := s.repo.UpdateRefreshTokenAccess(ctx, rt.ID, issued.ID); err != nil {
			return nil, errors.Wrap(err, "[Refresh] repointing refresh token")
		}
		result.RefreshToken = plaintext
		return result, nil
	}

	next, err := s.IssueRefreshToken(ctx, issued.ID, rt.ClientID, rt.UserID, rt.Scopes)
	if err != nil {
		log.Warn().Err(err).Str("client_id", rt.ClientID).Msg("refresh token rotation failed, returning access token only")
		return result, nil
	}
	result.RefreshToken = next
	return result, nil
}

// Revoke invalidates a token of either kind. It reports false when the
// token is unknown. Revoking an access token also revokes refresh tokens
// pointing at it; revoking a refresh token also revokes its access token.
func (s *Service) Revoke(ctx context.Context, plaintext string, hint oauth2.TokenTypeHint) (bool, error) {
	if plaintext == "" {
		return false, nil
	}
	digest := s.codec.Digest(plaintext)
	order := []func(context.Context, string) (bool, error){s.revokeAccess, s.revokeRefresh}
	if hint == oauth2.RefreshTokenHint {
		order[0], order[1] = order[1], order[0]
	}
	for _, revoke := range order {
		found, err := revoke(ctx, digest)
		if err != nil {
			return false, errors.Wrap(err, "[Revoke]")
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) revokeAccess(ctx context.Context, digest string) (bool, error) {
	at, err := s.repo.GetAccessTokenByHash(ctx, digest)
	if errors.Is(err, oautherrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	now := s.nowFunc().UTC()
	if at.RevokedAt == nil {
		if err := s.repo.RevokeAccessToken(ctx, at.ID, now); err != nil {
			return false, err
		}
	}
	if err := s.repo.RevokeRefreshTokensForAccess(ctx, at.ID, now); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) revokeRefresh(ctx context.Context, digest string) (bool, error) {
	rt, err := s.repo.GetRefreshTokenByHash(ctx, digest)
	if errors.Is(err, oautherrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	now := s.nowFunc().UTC()
	if rt.RevokedAt == nil {
		if err := s.repo.RevokeRefreshToken(ctx, rt.ID, now); err != nil {
			return false, err
		}
	}
	if rt.AccessTokenID != "" {
		err := s.repo.RevokeAccessToken(ctx, rt.AccessTokenID, now)
		if err != nil && !errors.Is(err, oautherrors.ErrNotFound) {
			return false, err
		}
	}
	return true, nil
}

// Introspect describes a token per RFC 7662. Unknown, revoked and expired
// tokens are reported as inactive without error.
func (s *Service) Introspect(ctx context.Context, plaintext string) (*Introspection, error) {
	if plaintext == "" {
		return &Introspection{Active: false}, nil
	}
	digest := s.codec.Digest(plaintext)
	now := s.nowFunc()

	at, err := s.repo.GetAccessTokenByHash(ctx, digest)
	switch {
	case err == nil:
		if !at.Active(now) {
			return &Introspection{Active: false}, nil
		}
		return &Introspection{
			Active:    true,
			Scope:     oauth2.JoinScopes(at.Scopes),
			ClientID:  at.ClientID,
			Sub:       at.UserID,
			TokenType: oauth2.BearerTokenType,
			Exp:       at.ExpiresAt.Unix(),
			Iat:       at.CreatedAt.Unix(),
		}, nil
	case !errors.Is(err, oautherrors.ErrNotFound):
		return nil, errors.Wrap(err, "[Introspect] loading access token")
	}

	rt, err := s.repo.GetRefreshTokenByHash(ctx, digest)
	if errors.Is(err, oautherrors.ErrNotFound) {
		return &Introspection{Active: false}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Introspect] loading refresh token")
	}
	if !rt.Active(now) {
		return &Introspection{Active: false}, nil
	}
	return &Introspection{
		Active:    true,
		Scope:     oauth2.JoinScopes(rt.Scopes),
		ClientID:  rt.ClientID,
		Sub:       rt.UserID,
		TokenType: string(oauth2.RefreshTokenHint),
		Exp:       rt.ExpiresAt.Unix(),
		Iat:       rt.CreatedAt.Unix(),
	}, nil
}

// RevokeForClient revokes every live token the client holds for userID, or
// for all users when userID is empty.
func (s *Service) RevokeForClient(ctx context.Context, clientID, userID string) error {
	return errors.Wrap(s.repo.RevokeForClient(ctx, clientID, userID, s.nowFunc().UTC()), "[RevokeForClient]")
}

func (s *Service) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, before)
}
