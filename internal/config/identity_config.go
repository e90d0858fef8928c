package config

import "github.com/spf13/viper"

// IdentityConfig describes the upstream identity provider whose ID tokens
// are accepted as identity assertions.
type IdentityConfig interface {
	GetIdentityIssuer() string
	GetIdentityClientID() string
	GetIdentityNamespace() string
}

type Identity struct {
	v *viper.Viper
}

var _ IdentityConfig = Identity{}

func (i Identity) GetIdentityIssuer() string {
	return i.v.GetString(KeyIdentityIssuer)
}

func (i Identity) GetIdentityClientID() string {
	return i.v.GetString(KeyIdentityClientID)
}

// GetIdentityNamespace is prefixed to every subject id. Empty means the
// identity provider's issuer host.
func (i Identity) GetIdentityNamespace() string {
	return i.v.GetString(KeyIdentityNamespace)
}
