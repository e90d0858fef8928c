package config

import (
	"os"
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
		port = ":" + port
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

// GetBaseURL returns the public base URL of this server (e.g. "https://api.example.com")
// without a trailing slash. It is the default issuer and audience of minted tokens
// and the prefix of every advertised endpoint.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.v.GetString(KeyBaseURL), "/")
}

// GetProtectedAPIURL returns the upstream that authorized requests are forwarded to.
// Empty means the built-in handler answers protected routes.
func (e EnvVars) GetProtectedAPIURL() string {
	return e.v.GetString(KeyProtectedAPIURL)
}

// GetEnv reads an environment variable, returning defaultValue when it is unset or empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
