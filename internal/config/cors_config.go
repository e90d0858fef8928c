package config

import (
	"sort"
	"strings"

	"github.com/spf13/viper"
)

type Cors struct {
	v *viper.Viper
}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

const anyOrigin = "*"

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	if _, ok := a[anyOrigin]; ok {
		return true
	}
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) AllowsAny() bool {
	_, ok := a[anyOrigin]
	return ok
}

func (a AllowedOrigins) String() string {
	origins := make([]string, 0, len(a))
	for k := range a {
		origins = append(origins, k)
	}
	sort.Strings(origins)
	return strings.Join(origins, ", ")
}

func (c Cors) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, origin := range c.v.GetStringSlice(KeyCorsAllowedOrigins) {
		for _, o := range strings.Split(origin, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins[o] = nullValue{}
			}
		}
	}
	return origins
}

func (Cors) GetAllowedMethods() string {
	return "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization, Mcp-Protocol-Version"
}
