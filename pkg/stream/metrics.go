package stream

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Messages    prometheus.Counter
	WriteErrors prometheus.Counter
	Points      prometheus.Gauge
}

func NewMetrics() *Metrics {
	const (
		namespace = "pcdpublisher"
		subsystem = "stream"
	)

	return &Metrics{
		Messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_total",
			Help:      "Number of point cloud messages handed to the writer",
		}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_errors_total",
			Help:      "Number of writes the channel rejected",
		}),
		Points: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "points",
			Help:      "Number of points in each published message",
		}),
	}
}

func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Messages,
		m.WriteErrors,
		m.Points,
	}
}
