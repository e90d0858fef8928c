package config

import "github.com/spf13/viper"

type StoreConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Store struct {
	v *viper.Viper
}

var _ StoreConfig = Store{}

// GetRedisAddr returns the redis address for shared attempt latches.
// Empty selects the in-process store.
func (s Store) GetRedisAddr() string {
	return s.v.GetString(KeyRedisAddr)
}

func (s Store) GetRedisPassword() string {
	return s.v.GetString(KeyRedisPassword)
}

func (s Store) GetRedisDB() int {
	return s.v.GetInt(KeyRedisDB)
}
