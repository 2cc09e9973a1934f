package config

import (
	"time"

	"github.com/spf13/viper"
)

type OAuthConfig interface {
	GetAuthCodeTimeout() time.Duration
	GetCodeGenerationLength() int
	GetAccessTokenLength() int
	GetRefreshTokenLength() int
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultIDTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
	GetRefreshRotation() string
	GetConsentPolicy() string
	GetSupportedScopes() []string
}

type OAuth struct {
	v *viper.Viper
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetAuthCodeTimeout() time.Duration {
	return o.v.GetDuration(KeyAuthCodeTTL)
}

func (OAuth) GetCodeGenerationLength() int {
	return 32
}

func (OAuth) GetAccessTokenLength() int {
	return 32
}

func (OAuth) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (o OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return o.v.GetDuration(KeyAccessTokenTTL)
}

func (o OAuth) GetDefaultIDTokenExpiry() time.Duration {
	return o.v.GetDuration(KeyIDTokenTTL)
}

func (o OAuth) GetDefaultRefreshTokenExpiry() time.Duration {
	return o.v.GetDuration(KeyRefreshTokenTTL)
}

// GetRefreshRotation is "rotate" or "repoint".
func (o OAuth) GetRefreshRotation() string {
	return o.v.GetString(KeyRefreshRotation)
}

// GetConsentPolicy is "superset" or "any".
func (o OAuth) GetConsentPolicy() string {
	return o.v.GetString(KeyConsentPolicy)
}

func (o OAuth) GetSupportedScopes() []string {
	return splitList(o.v.GetString(KeySupportedScopes))
}
