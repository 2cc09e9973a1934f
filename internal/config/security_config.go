package config

import (
	"time"

	"github.com/spf13/viper"
)

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetBcryptCost() int
	GetTokenDigestKey() string
	GetSessionSecret() string
	GetSigningKeyPEM() string
	GetSigningKeyFile() string
	GetEnableRateLimiting() bool
	GetRateLimit() (float64, int)
	GetCredentialCacheTTL() time.Duration
}

type Security struct {
	v *viper.Viper
}

var _ SecurityConfig = Security{}

func (s Security) GetRequirePKCE() bool {
	return s.v.GetBool(KeyRequirePKCE)
}

func (s Security) GetBcryptCost() int {
	return s.v.GetInt(KeyBcryptCost)
}

// GetTokenDigestKey is the HMAC key for code and token lookup digests.
func (s Security) GetTokenDigestKey() string {
	return s.v.GetString(KeyTokenDigestKey)
}

// GetSessionSecret is the HS256 secret shared with the application that
// issues resource-owner session tokens.
func (s Security) GetSessionSecret() string {
	return s.v.GetString(KeySessionSecret)
}

func (s Security) GetSigningKeyPEM() string {
	return s.v.GetString(KeySigningKeyPEM)
}

func (s Security) GetSigningKeyFile() string {
	return s.v.GetString(KeySigningKeyFile)
}

func (s Security) GetEnableRateLimiting() bool {
	return s.v.GetBool(KeyRateLimitEnabled)
}

// GetRateLimit returns requests per second and burst for the token endpoint.
func (s Security) GetRateLimit() (float64, int) {
	return s.v.GetFloat64(KeyRateLimitRPS), s.v.GetInt(KeyRateLimitBurst)
}

func (s Security) GetCredentialCacheTTL() time.Duration {
	return s.v.GetDuration(KeyCredentialTTL)
}
