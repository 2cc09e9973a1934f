package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetIssuer() string
	GetLoginURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
	Storage
}

// New binds every getter to v. Defaults are registered on v and the
// environment is consulted automatically, so flags bound to v by the caller
// take precedence over both.
func New(v *viper.Viper) Config {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return mainConfig{
		EnvVars:  EnvVars{v: v},
		Cors:     Cors{v: v},
		OAuth:    OAuth{v: v},
		Security: Security{v: v},
		Storage:  Storage{v: v},
	}
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
