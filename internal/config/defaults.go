package config

import (
	"time"

	"github.com/spf13/viper"
)

// Keys double as environment variable names (upper-cased).
const (
	KeyPort     = "port"
	KeyAppName  = "app_name"
	KeyEnv      = "env"
	KeyLogLevel = "log_level"
	KeyIssuer   = "oidc_issuer"
	KeyLoginURL = "login_url"

	KeyCorsAllowedOrigins = "cors_allowed_origins"

	KeyAuthCodeTTL      = "auth_code_ttl"
	KeyAccessTokenTTL   = "access_token_ttl"
	KeyIDTokenTTL       = "id_token_ttl"
	KeyRefreshTokenTTL  = "refresh_token_ttl"
	KeyRefreshRotation  = "refresh_rotation"
	KeyConsentPolicy    = "consent_policy"
	KeySupportedScopes  = "supported_scopes"
	KeyRequirePKCE      = "require_pkce"
	KeyBcryptCost       = "bcrypt_cost"
	KeyTokenDigestKey   = "token_digest_key"
	KeySessionSecret    = "session_secret"
	KeySigningKeyPEM    = "signing_key_pem"
	KeySigningKeyFile   = "signing_key_file"
	KeyRateLimitEnabled = "rate_limit_enabled"
	KeyRateLimitRPS     = "rate_limit_rps"
	KeyRateLimitBurst   = "rate_limit_burst"
	KeyCredentialTTL    = "credential_cache_ttl"

	KeyDatabaseDriver   = "database_driver"
	KeyDatabaseURL      = "database_url"
	KeyRedisURL         = "redis_url"
	KeyAMQPURL          = "amqp_url"
	KeyAMQPExchange     = "amqp_exchange"
	KeyCleanupInterval  = "cleanup_interval"
	KeyCleanupRetention = "cleanup_retention"
	KeyUsersFile        = "users_file"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyAppName, "OIDC Provider")
	v.SetDefault(KeyEnv, "DEV")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyIssuer, "")
	v.SetDefault(KeyLoginURL, "/login")

	v.SetDefault(KeyCorsAllowedOrigins, "")

	v.SetDefault(KeyAuthCodeTTL, 10*time.Minute)
	v.SetDefault(KeyAccessTokenTTL, time.Hour)
	v.SetDefault(KeyIDTokenTTL, time.Hour)
	v.SetDefault(KeyRefreshTokenTTL, 30*24*time.Hour)
	v.SetDefault(KeyRefreshRotation, "rotate")
	v.SetDefault(KeyConsentPolicy, "superset")
	v.SetDefault(KeySupportedScopes, "openid profile email offline_access")
	v.SetDefault(KeyRequirePKCE, false)
	v.SetDefault(KeyBcryptCost, 10)
	v.SetDefault(KeyTokenDigestKey, "")
	v.SetDefault(KeySessionSecret, "")
	v.SetDefault(KeySigningKeyPEM, "")
	v.SetDefault(KeySigningKeyFile, "")
	v.SetDefault(KeyRateLimitEnabled, true)
	v.SetDefault(KeyRateLimitRPS, 5.0)
	v.SetDefault(KeyRateLimitBurst, 20)
	v.SetDefault(KeyCredentialTTL, 5*time.Minute)

	v.SetDefault(KeyDatabaseDriver, "memory")
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyRedisURL, "")
	v.SetDefault(KeyAMQPURL, "")
	v.SetDefault(KeyAMQPExchange, "oidc.events")
	v.SetDefault(KeyCleanupInterval, time.Hour)
	v.SetDefault(KeyCleanupRetention, 24*time.Hour)
	v.SetDefault(KeyUsersFile, "users.yaml")
}
