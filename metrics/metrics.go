// Package metrics provides Prometheus metrics for session synchronization.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the session core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled bool

	// Bootstrap metrics
	bootstrapRuns     *prometheus.CounterVec
	bootstrapDuration prometheus.Histogram

	// Identity cache metrics
	cacheHitsTotal     *prometheus.CounterVec
	cacheMissTotal     *prometheus.CounterVec
	cacheCollapseTotal *prometheus.CounterVec

	// Navigation metrics
	guardDecisionsTotal *prometheus.CounterVec
	roleRedirectsTotal  *prometheus.CounterVec

	// Auth metrics
	loginTotal  *prometheus.CounterVec
	logoutTotal prometheus.Counter
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	m.bootstrapRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamsync_bootstrap_runs_total",
		Help: "Bootstrap runs by terminal outcome",
	}, []string{"outcome"})

	m.bootstrapDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "teamsync_bootstrap_duration_seconds",
		Help:    "Bootstrap duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	m.cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamsync_identity_cache_hits_total",
		Help: "Identity cache hits",
	}, []string{"key"})

	m.cacheMissTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamsync_identity_cache_misses_total",
		Help: "Identity cache misses",
	}, []string{"key"})

	m.cacheCollapseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamsync_identity_cache_collapsed_total",
		Help: "Concurrent fetches collapsed into a shared flight",
	}, []string{"key"})

	m.guardDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamsync_guard_decisions_total",
		Help: "Route guard decisions by verdict",
	}, []string{"verdict"})

	m.roleRedirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamsync_role_redirects_total",
		Help: "Role router redirects by role",
	}, []string{"role"})

	m.loginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamsync_login_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	m.logoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamsync_logout_total",
		Help: "Logouts",
	})

	return m
}

// RecordBootstrap records one bootstrap run with its terminal outcome and
// duration in seconds.
func (m *Metrics) RecordBootstrap(outcome string, seconds float64) {
	if m == nil || !m.enabled {
		return
	}
	m.bootstrapRuns.WithLabelValues(outcome).Inc()
	m.bootstrapDuration.Observe(seconds)
}

// RecordCacheHit records an identity cache hit.
func (m *Metrics) RecordCacheHit(key string) {
	if m == nil || !m.enabled {
		return
	}
	m.cacheHitsTotal.WithLabelValues(key).Inc()
}

// RecordCacheMiss records an identity cache miss.
func (m *Metrics) RecordCacheMiss(key string) {
	if m == nil || !m.enabled {
		return
	}
	m.cacheMissTotal.WithLabelValues(key).Inc()
}

// RecordCacheCollapse records a fetch that joined an existing flight.
func (m *Metrics) RecordCacheCollapse(key string) {
	if m == nil || !m.enabled {
		return
	}
	m.cacheCollapseTotal.WithLabelValues(key).Inc()
}

// RecordGuardDecision records a route guard verdict.
func (m *Metrics) RecordGuardDecision(verdict string) {
	if m == nil || !m.enabled {
		return
	}
	m.guardDecisionsTotal.WithLabelValues(verdict).Inc()
}

// RecordRoleRedirect records a role router redirect.
func (m *Metrics) RecordRoleRedirect(role string) {
	if m == nil || !m.enabled {
		return
	}
	m.roleRedirectsTotal.WithLabelValues(role).Inc()
}

// RecordLogin records a login attempt.
func (m *Metrics) RecordLogin(result string) {
	if m == nil || !m.enabled {
		return
	}
	m.loginTotal.WithLabelValues(result).Inc()
}

// RecordLogout records a logout.
func (m *Metrics) RecordLogout() {
	if m == nil || !m.enabled {
		return
	}
	m.logoutTotal.Inc()
}
