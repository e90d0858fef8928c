package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type OAuthConfig interface {
	GetIssuer() string
	GetAudience() string
	GetSigningAlgorithm() string
	GetSigningSecret() string
	GetPrivateKeyFile() string
	GetKeyID() string
	GetAccessTokenExpiry() time.Duration
	GetDefaultScope() string
	GetSupportedScopes() []string
	GetResourceMetadataURL() string
}

type OAuth struct {
	v *viper.Viper
}

var _ OAuthConfig = OAuth{}

const ResourceMetadataPath = "/mcp/.well-known/oauth-protected-resource"

func (o OAuth) baseURL() string {
	return EnvVars(o).GetBaseURL()
}

func (o OAuth) GetIssuer() string {
	if issuer := o.v.GetString(KeyTokenIssuer); issuer != "" {
		return issuer
	}
	return o.baseURL()
}

func (o OAuth) GetAudience() string {
	if aud := o.v.GetString(KeyTokenAudience); aud != "" {
		return aud
	}
	return o.baseURL()
}

func (o OAuth) GetSigningAlgorithm() string {
	return strings.ToUpper(o.v.GetString(KeyTokenSigningAlg))
}

func (o OAuth) GetSigningSecret() string {
	return o.v.GetString(KeyTokenSigningSecret)
}

func (o OAuth) GetPrivateKeyFile() string {
	return o.v.GetString(KeyTokenPrivateKeyFile)
}

func (o OAuth) GetKeyID() string {
	return o.v.GetString(KeyTokenKeyID)
}

func (o OAuth) GetAccessTokenExpiry() time.Duration {
	if d := o.v.GetDuration(KeyTokenExpiry); d > 0 {
		return d
	}
	return time.Hour
}

func (o OAuth) GetDefaultScope() string {
	return strings.Join(strings.Fields(o.v.GetString(KeyTokenDefaultScope)), " ")
}

func (o OAuth) GetSupportedScopes() []string {
	var scopes []string
	for _, s := range o.v.GetStringSlice(KeyTokenSupportedScopes) {
		scopes = append(scopes, strings.Fields(s)...)
	}
	return scopes
}

// GetResourceMetadataURL is the URL advertised in WWW-Authenticate challenges.
func (o OAuth) GetResourceMetadataURL() string {
	return o.baseURL() + ResourceMetadataPath
}
