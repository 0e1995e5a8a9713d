package daemon

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/theirongolddev/bedrockmon/internal/model"
)

// metrics are the daemon's own Prometheus series. They live in a private
// registry so several services can coexist in one process.
type metrics struct {
	registry *prometheus.Registry

	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
	newAnomalies *prometheus.CounterVec
	deliveries   *prometheus.CounterVec

	windowAnomalies *prometheus.GaugeVec
	windowCost      *prometheus.GaugeVec
	invocations     prometheus.Gauge
	failures        prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bedrockmon_polls_total",
				Help: "Analysis polls by result",
			},
			[]string{"result"},
		),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bedrockmon_poll_duration_seconds",
			Help:    "Duration of one collect, detect and report poll",
			Buckets: prometheus.DefBuckets,
		}),
		newAnomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bedrockmon_anomalies_total",
				Help: "Anomalies seen for the first time, by severity",
			},
			[]string{"severity"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bedrockmon_deliveries_total",
				Help: "Report deliveries triggered by anomalies, by result",
			},
			[]string{"result"},
		),
		windowAnomalies: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bedrockmon_window_anomalies",
				Help: "Anomalies in the trailing window, by severity",
			},
			[]string{"severity"},
		),
		windowCost: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bedrockmon_window_cost",
				Help: "Estimated cost of the trailing window",
			},
			[]string{"currency"},
		),
		invocations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bedrockmon_window_invocations",
			Help: "Invocations in the trailing window",
		}),
		failures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bedrockmon_collection_failures",
			Help: "Series the last poll could not collect",
		}),
	}

	m.registry.MustRegister(
		m.polls, m.pollDuration, m.newAnomalies, m.deliveries,
		m.windowAnomalies, m.windowCost, m.invocations, m.failures,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *metrics) observe(snap Snapshot, currency string, fresh []model.Anomaly) {
	m.windowAnomalies.WithLabelValues(string(model.SeverityWarning)).Set(float64(snap.Warnings))
	m.windowAnomalies.WithLabelValues(string(model.SeverityCritical)).Set(float64(snap.Critical))
	m.windowCost.WithLabelValues(currency).Set(snap.EstimatedCost)
	m.invocations.Set(snap.Invocations)
	m.failures.Set(float64(snap.Failures))
	for _, a := range fresh {
		m.newAnomalies.WithLabelValues(string(a.Severity)).Inc()
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
