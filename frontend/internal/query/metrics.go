package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultHit     = "hit"
	resultStale   = "stale"
	resultMiss    = "miss"
	resultError   = "error"
	resultRefetch = "refetch"
)

// Metrics counts cache lookups. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_cache_requests_total",
				Help: "Cache lookups by resource and result",
			},
			[]string{"resource", "result"},
		),
	}
}

func (m *Metrics) request(resource, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(resource, result).Inc()
}
