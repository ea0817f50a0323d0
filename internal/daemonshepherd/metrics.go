package daemonshepherd

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors exposed by daemonshepherd's
// debug HTTP surface (spec §9: "daemonshepherd carries its own metrics
// namespace"). Grounded on the teacher's package-level collector set in
// internal/metrics/metrics.go, adapted to an instance rather than package
// globals so multiple Controllers in the same process (as in tests) don't
// collide on registration.
type Metrics struct {
	starts  *prometheus.CounterVec
	exits   *prometheus.CounterVec
	backoff *prometheus.GaugeVec
}

// NewMetrics builds and registers the collector set against r.
func NewMetrics(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daemonshepherd",
			Name:      "starts_total",
			Help:      "Number of times a daemon has been started.",
		}, []string{"daemon"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daemonshepherd",
			Name:      "exits_total",
			Help:      "Number of times a daemon has exited, labeled by whether the exit was requested.",
		}, []string{"daemon", "requested"}),
		backoff: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "daemonshepherd",
			Name:      "backoff_index",
			Help:      "Current restart backoff index per daemon.",
		}, []string{"daemon"}),
	}
	for _, c := range []prometheus.Collector{m.starts, m.exits, m.backoff} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordStart increments the start counter for name.
func (m *Metrics) RecordStart(name string) {
	m.starts.WithLabelValues(name).Inc()
}

// RecordExit increments the exit counter for name, labeled by whether the
// exit followed a deliberate stop request.
func (m *Metrics) RecordExit(name string, requested bool) {
	label := "false"
	if requested {
		label = "true"
	}
	m.exits.WithLabelValues(name, label).Inc()
}

// SetBackoffIndex records the current backoff index for name.
func (m *Metrics) SetBackoffIndex(name string, idx int) {
	m.backoff.WithLabelValues(name).Set(float64(idx))
}
