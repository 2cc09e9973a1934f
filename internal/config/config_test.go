package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/internal/config"
)

type fakeSecrets struct {
	value string
	err   error
	asked *secretsmanager.GetSecretValueInput
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.asked = in
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.value)}, nil
}

func TestConfig_Defaults(t *testing.T) {
	c := config.New(viper.New())

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, 10*time.Minute, c.GetAuthCodeTimeout())
	require.Equal(t, time.Hour, c.GetDefaultAccessTokenExpiry())
	require.Equal(t, time.Hour, c.GetDefaultIDTokenExpiry())
	require.Equal(t, 30*24*time.Hour, c.GetDefaultRefreshTokenExpiry())
	require.Equal(t, "rotate", c.GetRefreshRotation())
	require.Equal(t, "superset", c.GetConsentPolicy())
	require.Equal(t, []string{"openid", "profile", "email", "offline_access"}, c.GetSupportedScopes())
	require.Equal(t, "memory", c.GetDatabaseDriver())
	require.Empty(t, c.GetAllowedOrigins())
}

func TestConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("REFRESH_ROTATION", "repoint")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("OIDC_ISSUER", "https://id.example/")

	c := config.New(viper.New())

	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, 15*time.Minute, c.GetDefaultAccessTokenExpiry())
	require.Equal(t, "repoint", c.GetRefreshRotation())
	require.Equal(t, "https://id.example", c.GetIssuer())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example"))
	require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("https://c.example"))
}

func TestConfig_ExplicitValuesWin(t *testing.T) {
	t.Setenv("PORT", "9000")
	v := viper.New()
	v.Set(config.KeyPort, ":7000")

	require.Equal(t, ":7000", config.New(v).GetPort())
}

func TestLoadSecretIntoEnv(t *testing.T) {
	t.Run("exports keys without overwriting", func(t *testing.T) {
		t.Setenv("SESSION_SECRET", "from-env")
		t.Setenv("TOKEN_DIGEST_KEY", "")
		os.Unsetenv("TOKEN_DIGEST_KEY")

		f := &fakeSecrets{value: `{"SESSION_SECRET":"from-aws","TOKEN_DIGEST_KEY":"digest-from-aws"}`}
		require.NoError(t, config.LoadSecretIntoEnv(context.Background(), f, "oidc/prod"))

		require.Equal(t, "oidc/prod", aws.ToString(f.asked.SecretId))
		require.Equal(t, "from-env", os.Getenv("SESSION_SECRET"))
		require.Equal(t, "digest-from-aws", os.Getenv("TOKEN_DIGEST_KEY"))
	})

	t.Run("overwrite flag replaces existing values", func(t *testing.T) {
		t.Setenv("SESSION_SECRET", "from-env")
		t.Setenv("AWS_SECRETS_MANAGER_OVERWRITE", "true")

		f := &fakeSecrets{value: `{"SESSION_SECRET":"from-aws"}`}
		require.NoError(t, config.LoadSecretIntoEnv(context.Background(), f, "oidc/prod"))
		require.Equal(t, "from-aws", os.Getenv("SESSION_SECRET"))
	})

	t.Run("fetch failure", func(t *testing.T) {
		f := &fakeSecrets{err: errors.New("denied")}
		err := config.LoadSecretIntoEnv(context.Background(), f, "oidc/prod")
		require.Error(t, err)
		require.Contains(t, err.Error(), "denied")
	})

	t.Run("non JSON payload", func(t *testing.T) {
		f := &fakeSecrets{value: "not-json"}
		require.Error(t, config.LoadSecretIntoEnv(context.Background(), f, "oidc/prod"))
	})
}

func TestLoadEnv_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LOGIN_URL=https://app.example/login\n"), 0o600))
	t.Setenv("LOGIN_URL", "")
	os.Unsetenv("LOGIN_URL")
	t.Setenv(secretIDEnvVarForTest, "")

	require.NoError(t, config.LoadEnv(context.Background(), path))
	require.Equal(t, "https://app.example/login", config.New(viper.New()).GetLoginURL())
}

const secretIDEnvVarForTest = "AWS_SECRETS_MANAGER_SECRET_ID"
