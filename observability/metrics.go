package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "nbkernel"

// MetricsObserver counts events by type and level and records the
// durations events carry.
type MetricsObserver struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetricsObserver creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &MetricsObserver{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Kernel events by type and level.",
		}, []string{"type", "level"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "event_duration_seconds",
			Help:      "Elapsed time reported by kernel events.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"type"}),
	}

	for _, c := range []prometheus.Collector{m.events, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsObserver) OnEvent(_ context.Context, event Event) {
	t := string(event.Type)
	m.events.WithLabelValues(t, event.Level.String()).Inc()
	if d, ok := event.Duration(); ok {
		m.duration.WithLabelValues(t).Observe(d.Seconds())
	}
}
