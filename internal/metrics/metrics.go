// Package metrics exposes Prometheus collectors for the proxy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ytget/yt-download-proxy/internal/model"
)

const namespace = "ytproxy"

// Metrics holds the proxy's collectors.
type Metrics struct {
	registry *prometheus.Registry

	JobsSubmitted   prometheus.Counter
	JobsCompleted   *prometheus.CounterVec
	JobsActive      prometheus.Gauge
	CleanupRemoved  prometheus.Counter
	SweepRemoved    prometheus.Counter
	ClipboardWrites prometheus.Counter
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Download jobs accepted.",
		}),
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Download jobs that reached a terminal state.",
		}, []string{"status"}),
		JobsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Download jobs currently starting or downloading.",
		}),
		CleanupRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_removed_total",
			Help:      "Job directories removed by delayed cleanup.",
		}),
		SweepRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_removed_total",
			Help:      "Temp entries removed by the periodic sweep.",
		}),
		ClipboardWrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clipboard_writes_total",
			Help:      "Accepted clipboard writes.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveJob records a job transition. Each job is expected to be reported
// once as starting and once in a terminal state.
func (m *Metrics) ObserveJob(job model.Job) {
	switch {
	case job.Status == model.JobStatusStarting:
		m.JobsSubmitted.Inc()
		m.JobsActive.Inc()
	case job.Status.IsFinished():
		m.JobsCompleted.WithLabelValues(job.Status.String()).Inc()
		m.JobsActive.Dec()
	}
}
