package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-oidc-provider/authcode"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
)

const (
	defaultKeyPrefix  = "oidc:"
	maxConsumeRetries = 10
)

var _ authcode.Repo = (*CodeRepo)(nil)

// CodeRepo keeps authorization codes in Redis. Keys carry the code's
// lifetime as their TTL, so Redis reclaims expired codes on its own.
type CodeRepo struct {
	client    redis.UniversalClient
	keyPrefix string
}

type CodeRepoOption func(*CodeRepo)

func WithKeyPrefix(prefix string) CodeRepoOption {
	return func(r *CodeRepo) {
		r.keyPrefix = prefix
	}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "[redisstore.Connect] parse URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[redisstore.Connect] ping")
	}
	return client, nil
}

func NewCodeRepo(client redis.UniversalClient, options ...CodeRepoOption) *CodeRepo {
	r := &CodeRepo{client: client, keyPrefix: defaultKeyPrefix}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *CodeRepo) key(codeHash string) string {
	return r.keyPrefix + "code:" + codeHash
}

func (r *CodeRepo) Create(ctx context.Context, code *authcode.AuthorizationCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.Create] marshal")
	}
	ttl := code.ExpiresAt.Sub(code.CreatedAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := r.client.SetNX(ctx, r.key(code.CodeHash), data, ttl).Result()
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.Create]")
	}
	if !ok {
		return oautherrors.ErrConflict
	}
	return nil
}

// Consume uses WATCH/MULTI so that of two racing consumers only one
// transaction commits; the loser retries and sees the code as used.
func (r *CodeRepo) Consume(ctx context.Context, codeHash string, now time.Time, check authcode.CheckFunc) (*authcode.AuthorizationCode, error) {
	key := r.key(codeHash)
	var consumed *authcode.AuthorizationCode

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return oautherrors.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "[CodeRepo.Consume] get")
		}
		var code authcode.AuthorizationCode
		if err := json.Unmarshal(data, &code); err != nil {
			return errors.Wrap(err, "[CodeRepo.Consume] unmarshal")
		}
		if err := check(&code); err != nil {
			return err
		}

		usedAt := now
		code.UsedAt = &usedAt
		updated, err := json.Marshal(&code)
		if err != nil {
			return errors.Wrap(err, "[CodeRepo.Consume] marshal")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		consumed = &code
		return nil
	}

	for i := 0; i < maxConsumeRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return consumed, nil
	}
	return nil, errors.Wrap(oautherrors.ErrInvalidGrant, "[CodeRepo.Consume] too much contention")
}

// DeleteExpired is a no-op: Redis expires code keys itself.
func (r *CodeRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
