package hailerter

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordMessageNotificationAndFlowCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordMessage(true)
	m.RecordMessage(false)
	m.RecordNotification(StatusError)
	m.SetFlowCount(3)

	if got := testutil.ToFloat64(m.messages.WithLabelValues("true")); got != 1 {
		t.Fatalf("expected messages_total{has_state=true}=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.messages.WithLabelValues("false")); got != 1 {
		t.Fatalf("expected messages_total{has_state=false}=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected notifications_total{status=error}=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.flowCount); got != 3 {
		t.Fatalf("expected tracked_flows=3, got %v", got)
	}
}
