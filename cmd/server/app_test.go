package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/internal/config"
	"github.com/jrsteele09/go-oidc-provider/token/keys"
)

const (
	testUsersYAML = `
users:
  - id: admin-1
    username: root
    role: admin
    is_active: true
  - id: user-1
    username: ada
    is_active: true
`
	testClientsYAML = `
clients:
  - owner: admin-1
    name: Dashboard
    redirect_uris: [https://dash.example/cb]
    allowed_scopes: [openid, profile]
    is_trusted: true
  - owner: user-1
    name: Side Project
    redirect_uris: [https://side.example/cb]
    allowed_scopes: [openid]
    is_trusted: true
`
)

func testConfig(t *testing.T, settings map[string]any) config.Config {
	t.Helper()
	usersFile := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(usersFile, []byte(testUsersYAML), 0o600))

	v := viper.New()
	v.Set(config.KeyEnv, "TEST")
	v.Set(config.KeyUsersFile, usersFile)
	v.Set(config.KeyBcryptCost, 4)
	v.Set(config.KeyTokenDigestKey, "0123456789abcdef0123456789abcdef")
	for k, val := range settings {
		v.Set(k, val)
	}
	return config.New(v)
}

func TestParseSeedDocument(t *testing.T) {
	doc, err := parseSeedDocument([]byte(testClientsYAML))
	require.NoError(t, err)
	require.Len(t, doc.Clients, 2)
	require.Equal(t, "admin-1", doc.Clients[0].Owner)
	require.Equal(t, "Dashboard", doc.Clients[0].Name)
	require.Equal(t, []string{"https://dash.example/cb"}, doc.Clients[0].RedirectURIs)

	_, err = parseSeedDocument([]byte("clients:\n  - name: orphan\n    redirect_uris: [https://x.example/cb]\n"))
	require.Error(t, err)

	_, err = parseSeedDocument([]byte("clients:\n  - owner: a\n    secret: nope\n"))
	require.Error(t, err)
}

func TestTokenDigestKey(t *testing.T) {
	key, err := tokenDigestKey(testConfig(t, nil))
	require.NoError(t, err)
	require.Equal(t, "0123456789abcdef0123456789abcdef", string(key))

	_, err = tokenDigestKey(testConfig(t, map[string]any{config.KeyTokenDigestKey: ""}))
	require.Error(t, err)

	key, err = tokenDigestKey(testConfig(t, map[string]any{config.KeyTokenDigestKey: "", config.KeyEnv: "DEV"}))
	require.NoError(t, err)
	require.Len(t, key, 32)
}

func TestLoadSigner(t *testing.T) {
	kp, err := keys.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	pemData, err := kp.ExportPrivateKeyPEM()
	require.NoError(t, err)
	want, err := kp.ToJWK()
	require.NoError(t, err)

	t.Run("inline pem", func(t *testing.T) {
		signer, err := loadSigner(testConfig(t, map[string]any{config.KeySigningKeyPEM: pemData}))
		require.NoError(t, err)
		jwks, err := signer.GetJWKS()
		require.NoError(t, err)
		require.Equal(t, want.Kid, jwks.Keys[0].Kid)
	})

	t.Run("key file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "signing.pem")
		require.NoError(t, os.WriteFile(path, []byte(pemData), 0o600))
		signer, err := loadSigner(testConfig(t, map[string]any{config.KeySigningKeyFile: path}))
		require.NoError(t, err)
		jwks, err := signer.GetJWKS()
		require.NoError(t, err)
		require.Equal(t, want.Kid, jwks.Keys[0].Kid)
	})

	t.Run("generated", func(t *testing.T) {
		signer, err := loadSigner(testConfig(t, nil))
		require.NoError(t, err)
		require.NotNil(t, signer)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := loadSigner(testConfig(t, map[string]any{config.KeySigningKeyPEM: "not a key"}))
		require.Error(t, err)
	})
}

func TestNewApp_SQLiteWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	c := testConfig(t, map[string]any{
		config.KeyDatabaseDriver: "sqlite",
		config.KeyDatabaseURL:    filepath.Join(t.TempDir(), "oidc.db"),
		config.KeyRedisURL:       "redis://" + mr.Addr(),
	})
	ctx := context.Background()

	a, err := newApp(ctx, c, true)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.db)
	require.NotNil(t, a.redis)
	require.NoError(t, a.Health(ctx))

	doc, err := parseSeedDocument([]byte(testClientsYAML))
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, seedClients(ctx, &out, a, doc))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "client_secret=")

	admin, err := a.users.GetByID(ctx, "admin-1")
	require.NoError(t, err)
	list, err := a.service.ListClients(ctx, admin, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, client := range list {
		require.Equal(t, client.OwnerUserID == "admin-1", client.IsTrusted)
	}

	mr.Close()
	require.Error(t, a.Health(ctx))
}

func TestNewApp_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := newApp(ctx, testConfig(t, map[string]any{config.KeyDatabaseDriver: "postgres"}), false)
	require.ErrorContains(t, err, "DATABASE_URL")

	_, err = newApp(ctx, testConfig(t, map[string]any{config.KeyRefreshRotation: "sometimes"}), false)
	require.ErrorContains(t, err, "refresh rotation")

	_, err = newApp(ctx, testConfig(t, map[string]any{config.KeyUsersFile: filepath.Join(t.TempDir(), "missing.yaml")}), false)
	require.Error(t, err)

	doc, err := parseSeedDocument([]byte("clients:\n  - owner: nobody\n    name: x\n    redirect_uris: [https://x.example/cb]\n    allowed_scopes: [openid]\n"))
	require.NoError(t, err)
	a, err := newApp(ctx, testConfig(t, nil), false)
	require.NoError(t, err)
	defer a.Close()
	require.ErrorContains(t, seedClients(ctx, &bytes.Buffer{}, a, doc), "not a known user")
}

func TestNewApp_ClosesConnectionsOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	c := testConfig(t, map[string]any{
		config.KeyDatabaseDriver:  "sqlite",
		config.KeyDatabaseURL:     filepath.Join(t.TempDir(), "oidc.db"),
		config.KeyRedisURL:        "redis://" + mr.Addr(),
		config.KeyRefreshRotation: "sometimes",
	})

	a, err := newApp(context.Background(), c, true)
	require.ErrorContains(t, err, "refresh rotation")
	require.Nil(t, a)
	require.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWriteSigningKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	var out bytes.Buffer
	require.NoError(t, writeSigningKey(&out, path, 2048))
	require.Contains(t, out.String(), "BEGIN PUBLIC KEY")

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	signer, err := loadSigner(testConfig(t, map[string]any{config.KeySigningKeyFile: path}))
	require.NoError(t, err)
	jwks, err := signer.GetJWKS()
	require.NoError(t, err)
	require.Contains(t, out.String(), "kid: "+jwks.Keys[0].Kid)
}
