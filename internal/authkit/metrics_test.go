package authkit

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounterMetricsSnapshot(t *testing.T) {
	recorder := NewCounterMetrics()
	recorder.Increment(metricLoginSuccess)
	recorder.Increment(metricLoginSuccess)
	recorder.Increment(metricLogout)

	if recorder.Count(metricLoginSuccess) != 2 {
		t.Fatalf("expected 2 login successes, got %d", recorder.Count(metricLoginSuccess))
	}
	snapshot := recorder.Snapshot()
	snapshot[metricLogout] = 100
	if recorder.Count(metricLogout) != 1 {
		t.Fatalf("snapshot must be a copy")
	}
}

func TestPrometheusMetricsIncrement(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder, err := NewPrometheusMetrics(registry)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	recorder.Increment(metricRefreshSuccess)
	RecordRateLimited(recorder)
	RecordRateLimited(recorder)

	if value := testutil.ToFloat64(recorder.events.WithLabelValues(metricRefreshSuccess)); value != 1 {
		t.Fatalf("expected 1 refresh, got %v", value)
	}
	if value := testutil.ToFloat64(recorder.events.WithLabelValues(metricRateLimited)); value != 2 {
		t.Fatalf("expected 2 rate limited, got %v", value)
	}
	if _, err := NewPrometheusMetrics(registry); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
