package batch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes manager counters to Prometheus. A nil *Metrics disables
// instrumentation, so the manager never branches on a config flag.
type Metrics struct {
	requests      *prometheus.CounterVec
	apiCalls      *prometheus.CounterVec
	apiCallsSaved prometheus.Counter
	cacheHits     *prometheus.CounterVec
	itemFailures  *prometheus.CounterVec
}

// NewMetrics registers the batch manager collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemscan",
			Subsystem: "batch",
			Name:      "requests_total",
			Help:      "Batch fetch requests by data kind and strategy.",
		}, []string{"kind", "strategy"}),
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemscan",
			Subsystem: "batch",
			Name:      "api_calls_total",
			Help:      "Upstream API calls issued by data kind.",
		}, []string{"kind"}),
		apiCallsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gemscan",
			Subsystem: "batch",
			Name:      "api_calls_saved_total",
			Help:      "API calls avoided through cache hits and validation filtering.",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemscan",
			Subsystem: "batch",
			Name:      "cache_hits_total",
			Help:      "Cache hits by data kind.",
		}, []string{"kind"}),
		itemFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemscan",
			Subsystem: "batch",
			Name:      "item_failures_total",
			Help:      "Per-address fetch failures by data kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.requests, m.apiCalls, m.apiCallsSaved, m.cacheHits, m.itemFailures)
	return m
}

func (m *Metrics) observeRequest(kind DataKind, strategy Strategy) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(kind), strategy.String()).Inc()
}

func (m *Metrics) observeAPICalls(kind DataKind, n int) {
	if m == nil || n == 0 {
		return
	}
	m.apiCalls.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *Metrics) observeSaved(n int) {
	if m == nil || n == 0 {
		return
	}
	m.apiCallsSaved.Add(float64(n))
}

func (m *Metrics) observeCacheHits(kind DataKind, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cacheHits.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *Metrics) observeItemFailure(kind DataKind) {
	if m == nil {
		return
	}
	m.itemFailures.WithLabelValues(string(kind)).Inc()
}
