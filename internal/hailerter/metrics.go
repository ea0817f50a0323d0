package hailerter

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds hailerter's Prometheus collectors, grounded on the same
// per-instance-collector-set shape as daemonshepherd's (see
// internal/daemonshepherd/metrics.go), itself adapted from the teacher's
// internal/metrics/metrics.go package-level collectors.
type Metrics struct {
	messages      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	flowCount     prometheus.Gauge
}

// NewMetrics builds and registers the collector set against r.
func NewMetrics(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hailerter",
			Name:      "messages_total",
			Help:      "Number of input messages processed, labeled by whether a state field was present.",
		}, []string{"has_state"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hailerter",
			Name:      "notifications_total",
			Help:      "Number of notification lines emitted, labeled by status.",
		}, []string{"status"}),
		flowCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hailerter",
			Name:      "tracked_flows",
			Help:      "Current number of tracked flows.",
		}),
	}
	for _, c := range []prometheus.Collector{m.messages, m.notifications, m.flowCount} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordMessage increments the message counter.
func (m *Metrics) RecordMessage(hasState bool) {
	label := "false"
	if hasState {
		label = "true"
	}
	m.messages.WithLabelValues(label).Inc()
}

// RecordNotification increments the notification counter for status.
func (m *Metrics) RecordNotification(status Status) {
	m.notifications.WithLabelValues(string(status)).Inc()
}

// SetFlowCount records the current tracked-flow count.
func (m *Metrics) SetFlowCount(n int) {
	m.flowCount.Set(float64(n))
}
