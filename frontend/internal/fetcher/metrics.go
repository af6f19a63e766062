package fetcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sourceMock = "mock"
	sourceLive = "live"
)

// Metrics counts dispatches. A nil *Metrics records nothing.
type Metrics struct {
	dispatches     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	sessionExpired prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_dispatch_total",
				Help: "Total number of backend dispatches by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fetch_dispatch_duration_seconds",
				Help:    "Backend dispatch duration in seconds, delay included",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),
		sessionExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fetch_session_expired_total",
				Help: "Number of dispatches that ended the session with a 401",
			},
		),
	}
}

func (m *Metrics) observe(source string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.dispatches.WithLabelValues(source, outcome).Inc()
	m.duration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

func (m *Metrics) expired() {
	if m == nil {
		return
	}
	m.sessionExpired.Inc()
}
