package config

import (
	"time"

	"github.com/spf13/viper"
)

type SecurityConfig interface {
	GetAttemptTTL() time.Duration
}

type Security struct {
	v *viper.Viper
}

var _ SecurityConfig = Security{}

// GetAttemptTTL bounds how long an authorization attempt latch is retained.
func (s Security) GetAttemptTTL() time.Duration {
	if d := s.v.GetDuration(KeyAttemptTTL); d > 0 {
		return d
	}
	return 10 * time.Minute
}
