package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	IdentityConfig
	SecurityConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBaseURL() string
	GetProtectedAPIURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// Configuration keys. Each key is read from the environment with dots
// replaced by underscores and upper-cased, e.g. token.issuer -> TOKEN_ISSUER.
const (
	KeyPort            = "port"
	KeyAppName         = "app_name"
	KeyEnv             = "env"
	KeyLogLevel        = "log_level"
	KeyBaseURL         = "base_url"
	KeyProtectedAPIURL = "protected_api_url"

	KeyTokenIssuer          = "token.issuer"
	KeyTokenAudience        = "token.audience"
	KeyTokenSigningAlg      = "token.signing_alg"
	KeyTokenSigningSecret   = "token.signing_secret"
	KeyTokenPrivateKeyFile  = "token.private_key_file"
	KeyTokenKeyID           = "token.key_id"
	KeyTokenExpiry          = "token.expiry"
	KeyTokenDefaultScope    = "default_scope"
	KeyTokenSupportedScopes = "supported_scopes"

	KeyIdentityIssuer    = "idp.issuer"
	KeyIdentityClientID  = "idp.client_id"
	KeyIdentityNamespace = "identity.namespace"

	KeyAttemptTTL = "attempt.ttl"

	KeyRedisAddr     = "redis.addr"
	KeyRedisPassword = "redis.password"
	KeyRedisDB       = "redis.db"

	KeyCorsAllowedOrigins = "allowed_origins"
)

// SetDefaults registers the default value of every key on v and enables
// environment lookups.
func SetDefaults(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyAppName, "Go Resource Auth")
	v.SetDefault(KeyEnv, "DEV")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyBaseURL, "http://localhost:8080")
	v.SetDefault(KeyTokenSigningAlg, "RS256")
	v.SetDefault(KeyTokenExpiry, time.Hour)
	v.SetDefault(KeyTokenDefaultScope, "read")
	v.SetDefault(KeyTokenSupportedScopes, "read write admin")
	v.SetDefault(KeyAttemptTTL, 10*time.Minute)
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyCorsAllowedOrigins, "*")
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Identity
	Security
	Store
}

// New builds a Config over v. Defaults are registered on v.
func New(v *viper.Viper) Config {
	SetDefaults(v)
	return mainConfig{
		EnvVars:  EnvVars{v: v},
		Cors:     Cors{v: v},
		OAuth:    OAuth{v: v},
		Identity: Identity{v: v},
		Security: Security{v: v},
		Store:    Store{v: v},
	}
}
