// Package metrics holds the Prometheus collectors for provider calls,
// cache lookups and credential swaps. A nil *Metrics is valid and records
// nothing, so components can take it as an optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tlumach"

// Metrics bundles the collectors registered by New.
type Metrics struct {
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	cacheEvictions   prometheus.Counter
	credentialSwaps  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is handy in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Provider request attempts by outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Latency of single provider request attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Translation cache lookups by result.",
		}, []string{"result"}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries removed from the translation cache by expiry or capacity.",
		}),
		credentialSwaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_swaps_total",
			Help:      "Credentials rotated out after an authentication failure.",
		}, []string{"provider"}),
	}
	if reg != nil {
		reg.MustRegister(m.providerRequests, m.providerLatency, m.cacheLookups, m.cacheEvictions, m.credentialSwaps)
	}
	return m
}

// ObserveAttempt records one provider request attempt.
func (m *Metrics) ObserveAttempt(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// CacheEvicted records n removed cache entries.
func (m *Metrics) CacheEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheEvictions.Add(float64(n))
}

// CredentialSwapped records a credential rotation for provider.
func (m *Metrics) CredentialSwapped(provider string) {
	if m == nil {
		return
	}
	m.credentialSwaps.WithLabelValues(provider).Inc()
}
