package daemonshepherd

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordStartAndExit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordStart("web")
	m.RecordExit("web", true)
	m.SetBackoffIndex("web", 2)

	if got := testutil.ToFloat64(m.starts.WithLabelValues("web")); got != 1 {
		t.Fatalf("expected starts_total=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.exits.WithLabelValues("web", "true")); got != 1 {
		t.Fatalf("expected exits_total=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.backoff.WithLabelValues("web")); got != 2 {
		t.Fatalf("expected backoff_index=2, got %v", got)
	}
}
