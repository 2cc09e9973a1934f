package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.v.GetString(KeyPort)
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(KeyAppName)
}

func (e EnvVars) GetEnv() string {
	return strings.ToUpper(e.v.GetString(KeyEnv))
}

func (e EnvVars) GetLogLevel() string {
	return e.v.GetString(KeyLogLevel)
}

// GetIssuer returns a fixed issuer URL. When empty the issuer is derived
// from each request's host and scheme.
func (e EnvVars) GetIssuer() string {
	return strings.TrimSuffix(e.v.GetString(KeyIssuer), "/")
}

// GetLoginURL is where unauthenticated /oauth/authorize requests are sent.
func (e EnvVars) GetLoginURL() string {
	return e.v.GetString(KeyLoginURL)
}
