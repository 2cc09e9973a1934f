package main

import (
	"context"
	"crypto/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-oidc-provider/auth"
	"github.com/jrsteele09/go-oidc-provider/authcode"
	fakecoderepo "github.com/jrsteele09/go-oidc-provider/authcode/fakerepo"
	"github.com/jrsteele09/go-oidc-provider/clients"
	fakeclientrepo "github.com/jrsteele09/go-oidc-provider/clients/fakerepo"
	"github.com/jrsteele09/go-oidc-provider/codec"
	"github.com/jrsteele09/go-oidc-provider/consent"
	fakeconsentrepo "github.com/jrsteele09/go-oidc-provider/consent/fakerepo"
	"github.com/jrsteele09/go-oidc-provider/discovery"
	"github.com/jrsteele09/go-oidc-provider/events"
	"github.com/jrsteele09/go-oidc-provider/idtoken"
	"github.com/jrsteele09/go-oidc-provider/internal/config"
	"github.com/jrsteele09/go-oidc-provider/internal/metrics"
	"github.com/jrsteele09/go-oidc-provider/server"
	"github.com/jrsteele09/go-oidc-provider/store/redisstore"
	"github.com/jrsteele09/go-oidc-provider/store/sqlstore"
	"github.com/jrsteele09/go-oidc-provider/token"
	faketokenrepo "github.com/jrsteele09/go-oidc-provider/token/fakerepo"
	"github.com/jrsteele09/go-oidc-provider/token/keys"
	"github.com/jrsteele09/go-oidc-provider/users"
	"github.com/jrsteele09/go-oidc-provider/users/filerepo"
)

const driverMemory = "memory"

// repos are the storage ports for the configured driver.
type repos struct {
	clients  clients.Repo
	consents consent.Repo
	codes    authcode.Repo
	tokens   token.Repo
}

// app holds the wired services and the connections they depend on.
type app struct {
	cfg       config.Config
	db        *sqlstore.DB
	redis     *redis.Client
	publisher events.Publisher
	closers   []func() error

	users      users.Repo
	registry   *clients.Registry
	service    *auth.AuthorizationService
	principals *auth.PrincipalVerifier
	discovery  *discovery.Service
	metrics    *metrics.Metrics
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("error during shutdown")
		}
	}
}

// openDatabase connects to the SQL backend. It returns nil for the memory
// driver.
func openDatabase(ctx context.Context, c config.Config) (*sqlstore.DB, error) {
	driver := c.GetDatabaseDriver()
	if driver == driverMemory {
		return nil, nil
	}
	if c.GetDatabaseURL() == "" {
		return nil, errors.Errorf("[openDatabase] %s requires DATABASE_URL", driver)
	}
	return sqlstore.Open(ctx, driver, c.GetDatabaseURL())
}

// newApp connects storage and builds every service from configuration.
// Connections opened before a failure are closed again.
func newApp(ctx context.Context, c config.Config, migrate bool) (_ *app, err error) {
	a := &app{cfg: c, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	r, err := a.openStorage(ctx, migrate)
	if err != nil {
		return nil, err
	}

	digestKey, err := tokenDigestKey(c)
	if err != nil {
		return nil, err
	}
	cd, err := codec.New(digestKey, codec.WithCost(c.GetBcryptCost()))
	if err != nil {
		return nil, errors.Wrap(err, "[newApp]")
	}

	a.registry, err = clients.NewRegistry(r.clients, cd, clients.WithCredentialCacheTTL(c.GetCredentialCacheTTL()))
	if err != nil {
		return nil, errors.Wrap(err, "[newApp]")
	}

	consents, err := consent.NewStore(r.consents, consent.WithPolicy(consent.ParsePolicy(c.GetConsentPolicy())))
	if err != nil {
		return nil, errors.Wrap(err, "[newApp]")
	}
	codes, err := authcode.NewManager(r.codes, cd,
		authcode.WithTTL(c.GetAuthCodeTimeout()),
		authcode.WithCodeBytes(c.GetCodeGenerationLength()))
	if err != nil {
		return nil, errors.Wrap(err, "[newApp]")
	}
	rotation, ok := token.ParseRotation(c.GetRefreshRotation())
	if !ok {
		return nil, errors.Errorf("[newApp] unknown refresh rotation %q", c.GetRefreshRotation())
	}
	tokens, err := token.NewService(r.tokens, cd,
		token.WithTokenExpiry(c.GetDefaultAccessTokenExpiry(), c.GetDefaultRefreshTokenExpiry()),
		token.WithRotation(rotation),
		token.WithTokenBytes(c.GetAccessTokenLength()))
	if err != nil {
		return nil, errors.Wrap(err, "[newApp]")
	}

	signer, err := loadSigner(c)
	if err != nil {
		return nil, err
	}

	userRepo, err := filerepo.Load(c.GetUsersFile())
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] loading users")
	}
	a.users = userRepo
	log.Info().Int("users", userRepo.Len()).Str("file", c.GetUsersFile()).Msg("resource owners loaded")

	if err := a.openPublisher(); err != nil {
		return nil, err
	}

	a.service, err = auth.NewAuthorizationService(auth.Dependencies{
		Users:    userRepo,
		Clients:  a.registry,
		Consents: consents,
		Codes:    codes,
		Tokens:   tokens,
		IDTokens: idtoken.NewIssuer(signer, idtoken.WithExpiry(c.GetDefaultIDTokenExpiry())),
	}, auth.WithPublisher(a.publisher), auth.WithRequirePKCE(c.GetRequirePKCE()))
	if err != nil {
		return nil, errors.Wrap(err, "[newApp]")
	}

	sessionSecret := []byte(c.GetSessionSecret())
	if len(sessionSecret) == 0 {
		log.Warn().Msg("SESSION_SECRET not set, /oauth/authorize cannot identify resource owners")
	}
	a.principals = auth.NewPrincipalVerifier(userRepo, sessionSecret, tokens)

	discoveryOptions := []discovery.ServiceOption{discovery.WithScopes(c.GetSupportedScopes())}
	if issuer := c.GetIssuer(); issuer != "" {
		discoveryOptions = append(discoveryOptions, discovery.WithIssuer(issuer))
	}
	a.discovery = discovery.NewService(signer, server.DiscoveryPaths(), discoveryOptions...)
	return a, nil
}

func (a *app) openStorage(ctx context.Context, migrate bool) (*repos, error) {
	db, err := openDatabase(ctx, a.cfg)
	if err != nil {
		return nil, err
	}

	var r *repos
	if db == nil {
		log.Warn().Msg("using in-memory storage, all state is lost on restart")
		r = &repos{
			clients:  fakeclientrepo.NewFakeClientRepo(),
			consents: fakeconsentrepo.NewFakeConsentRepo(),
			codes:    fakecoderepo.NewFakeCodeRepo(),
			tokens:   faketokenrepo.NewFakeTokenRepo(),
		}
	} else {
		a.db = db
		a.closers = append(a.closers, db.Close)
		if migrate {
			if err := db.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		r = &repos{
			clients:  sqlstore.NewClientRepo(db),
			consents: sqlstore.NewConsentRepo(db),
			codes:    sqlstore.NewCodeRepo(db),
			tokens:   sqlstore.NewTokenRepo(db),
		}
	}

	if url := a.cfg.GetRedisURL(); url != "" {
		client, err := redisstore.Connect(ctx, url)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		r.codes = redisstore.NewCodeRepo(client)
		log.Info().Msg("authorization codes stored in redis")
	}
	return r, nil
}

func (a *app) openPublisher() error {
	url := a.cfg.GetAMQPURL()
	if url == "" {
		a.publisher = events.LogPublisher{}
		return nil
	}
	p, err := events.DialAMQP(url, a.cfg.GetAMQPExchange())
	if err != nil {
		return err
	}
	a.publisher = p
	a.closers = append(a.closers, p.Close)
	log.Info().Str("exchange", a.cfg.GetAMQPExchange()).Msg("audit events published to AMQP")
	return nil
}

// Health pings every external dependency.
func (a *app) Health(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			return err
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "[Health] redis")
		}
	}
	return nil
}

// DeleteExpired sweeps codes and tokens for the cleanup job.
func (a *app) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return a.service.DeleteExpired(ctx, before)
}

// tokenDigestKey returns the configured HMAC key. DEV falls back to a
// random key, which invalidates every code and token on restart.
func tokenDigestKey(c config.Config) ([]byte, error) {
	if key := c.GetTokenDigestKey(); key != "" {
		return []byte(key), nil
	}
	if c.GetEnv() != "DEV" {
		return nil, errors.New("[tokenDigestKey] TOKEN_DIGEST_KEY is required outside DEV")
	}
	log.Warn().Msg("TOKEN_DIGEST_KEY not set, using a random key")
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "[tokenDigestKey]")
	}
	return key, nil
}

// loadSigner reads the RSA signing key from SIGNING_KEY_PEM or
// SIGNING_KEY_FILE, generating one when neither is set.
func loadSigner(c config.Config) (keys.Signer, error) {
	pemData := []byte(c.GetSigningKeyPEM())
	if len(pemData) == 0 && c.GetSigningKeyFile() != "" {
		data, err := os.ReadFile(c.GetSigningKeyFile())
		if err != nil {
			return nil, errors.Wrap(err, "[loadSigner] reading signing key file")
		}
		pemData = data
	}

	if len(pemData) == 0 {
		log.Warn().Msg("no signing key configured, generating an ephemeral RSA key")
		kp, err := keys.GenerateRSAKeyPair(2048)
		if err != nil {
			return nil, errors.Wrap(err, "[loadSigner]")
		}
		return keys.NewKeyPairSigner(kp), nil
	}

	kp, err := keys.LoadKeyPairFromPEM(pemData)
	if err != nil {
		return nil, errors.Wrap(err, "[loadSigner]")
	}
	return keys.NewKeyPairSigner(kp), nil
}
