// Package metrics exposes the engine's counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestsTotal counts rate requests, split by caller privilege.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrate_requests_total",
		Help: "Total exchange rate requests received.",
	}, []string{"privileged"})

	// ErrorsTotal counts failed requests by error variant.
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrate_errors_total",
		Help: "Total exchange rate requests that returned an error.",
	}, []string{"kind"})

	// CacheHits counts per-symbol rate-cache lookups that returned a usable entry.
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xrate_cache_hits_total",
		Help: "Per-symbol rate lookups served from the cache.",
	})

	// OutcallsTotal counts outbound HTTP calls per source and outcome.
	OutcallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrate_outcalls_total",
		Help: "Outbound HTTP calls to upstream sources.",
	}, []string{"source", "outcome"})

	// ForexRefreshTotal counts periodic forex refresh outcomes.
	ForexRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrate_forex_refresh_total",
		Help: "Periodic forex store refresh runs.",
	}, []string{"outcome"})

	// InflightRequests tracks requests currently being resolved.
	InflightRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xrate_inflight_requests",
		Help: "Requests currently resolving upstream rates.",
	})
)

// Register installs every collector on the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestsTotal,
		ErrorsTotal,
		CacheHits,
		OutcallsTotal,
		ForexRefreshTotal,
		InflightRequests,
	)
}
