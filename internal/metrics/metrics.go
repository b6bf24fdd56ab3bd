// Package metrics exposes Prometheus instruments for the host.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the registry host instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Invocations *prometheus.CounterVec
	Aborts      *prometheus.CounterVec
	Commits     prometheus.Counter
	Duration    prometheus.Histogram
	GasUsed     prometheus.Histogram
	Records     prometheus.Gauge
}

// New registers every instrument with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idreg_invocations_total",
			Help: "Invocations by action and reply status",
		}, []string{"action", "status"}),

		Aborts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idreg_aborts_total",
			Help: "Invocations aborted without commit, by error kind",
		}, []string{"kind"}),

		Commits: factory.NewCounter(prometheus.CounterOpts{
			Name: "idreg_commits_total",
			Help: "Snapshots committed to the backend",
		}),

		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "idreg_invocation_duration_seconds",
			Help:    "Wall time of one invocation from receipt to reply",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		GasUsed: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "idreg_gas_used",
			Help:    "Gas charged per metered invocation",
			Buckets: prometheus.ExponentialBuckets(1000, 2, 10),
		}),

		Records: factory.NewGauge(prometheus.GaugeOpts{
			Name: "idreg_records",
			Help: "Records held after the last committed invocation",
		}),
	}
}

// ObserveInvocation records one replied invocation.
func (m *Metrics) ObserveInvocation(action, status string, d time.Duration) {
	if m != nil {
		m.Invocations.WithLabelValues(action, status).Inc()
		m.Duration.Observe(d.Seconds())
	}
}

// IncrementAbort records an invocation that ended without commit.
func (m *Metrics) IncrementAbort(kind string) {
	if m != nil {
		m.Aborts.WithLabelValues(kind).Inc()
	}
}

// IncrementCommit records a successful commit and the resulting record count.
func (m *Metrics) IncrementCommit(records int) {
	if m != nil {
		m.Commits.Inc()
		m.Records.Set(float64(records))
	}
}

// ObserveGas records the gas an invocation used.
func (m *Metrics) ObserveGas(units uint64) {
	if m != nil {
		m.GasUsed.Observe(float64(units))
	}
}
