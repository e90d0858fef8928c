package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "resource_auth"

// Metrics holds the counters and histograms exported on /metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	TokenValidations         *prometheus.CounterVec
	AuthorizationCompletions *prometheus.CounterVec
	AuthorizationDuration    prometheus.Histogram
	TokenExchanges           *prometheus.CounterVec
}

// New registers the metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokenValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validations_total",
			Help:      "Bearer token validations by outcome",
		}, []string{"outcome"}),
		AuthorizationCompletions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_completions_total",
			Help:      "Authorization completion attempts by outcome",
		}, []string{"outcome"}),
		AuthorizationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "authorization_completion_duration_seconds",
			Help:      "Time taken to complete an authorization attempt",
			Buckets:   prometheus.DefBuckets,
		}),
		TokenExchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_exchanges_total",
			Help:      "Token endpoint exchanges by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveValidation(outcome string) {
	if m == nil {
		return
	}
	m.TokenValidations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAuthorization(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.AuthorizationCompletions.WithLabelValues(outcome).Inc()
	m.AuthorizationDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveExchange(outcome string) {
	if m == nil {
		return
	}
	m.TokenExchanges.WithLabelValues(outcome).Inc()
}
