package authkit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric event names.
const (
	metricRegisterSuccess     = "auth.register.success"
	metricLoginSuccess        = "auth.login.success"
	metricLoginFailure        = "auth.login.failure"
	metricRefreshSuccess      = "auth.refresh.success"
	metricRefreshRejected     = "auth.refresh.rejected"
	metricRefreshReplay       = "auth.refresh.replay"
	metricLogout              = "auth.logout"
	metricSessionCreated      = "auth.session.created"
	metricSessionsForceClosed = "auth.session.force_closed"
	metricGoogleLogin         = "auth.google.login"
	metricRateLimited         = "auth.rate_limited"
)

// MetricsRecorder increments counters for auth events.
type MetricsRecorder interface {
	Increment(event string)
}

type noopMetrics struct{}

func (noopMetrics) Increment(string) {}

// CounterMetrics implements MetricsRecorder with in-memory counts.
type CounterMetrics struct {
	mutex  sync.Mutex
	counts map[string]int64
}

// NewCounterMetrics constructs an in-memory metrics recorder.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{counts: make(map[string]int64)}
}

// Increment increases the counter for the given event.
func (recorder *CounterMetrics) Increment(event string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.counts[event]++
}

// Count returns the current value for the given event.
func (recorder *CounterMetrics) Count(event string) int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.counts[event]
}

// Snapshot returns a copy of all recorded counters.
func (recorder *CounterMetrics) Snapshot() map[string]int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	clone := make(map[string]int64, len(recorder.counts))
	for key, value := range recorder.counts {
		clone[key] = value
	}
	return clone
}

// PrometheusMetrics exports auth events as a labelled counter.
type PrometheusMetrics struct {
	events *prometheus.CounterVec
}

// NewPrometheusMetrics registers dualauth_auth_events_total with registerer.
func NewPrometheusMetrics(registerer prometheus.Registerer) (*PrometheusMetrics, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dualauth_auth_events_total",
		Help: "Authentication lifecycle events by type.",
	}, []string{"event"})
	if registerer != nil {
		if err := registerer.Register(events); err != nil {
			return nil, err
		}
	}
	return &PrometheusMetrics{events: events}, nil
}

// Increment increases the counter for the given event.
func (recorder *PrometheusMetrics) Increment(event string) {
	recorder.events.WithLabelValues(event).Inc()
}

// RecordRateLimited counts a rejected attempt.
func RecordRateLimited(recorder MetricsRecorder) {
	if recorder != nil {
		recorder.Increment(metricRateLimited)
	}
}
