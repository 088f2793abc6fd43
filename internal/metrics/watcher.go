package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type watcherMetrics struct {
	polls       prometheus.Counter
	swaps       prometheus.Counter
	errors      *prometheus.CounterVec
	build       prometheus.Histogram
	lastSuccess prometheus.Gauge
	stale       prometheus.Gauge
}

func newWatcherMetrics(f promauto.Factory) watcherMetrics {
	return watcherMetrics{
		polls: f.NewCounter(prometheus.CounterOpts{
			Name: "features_watcher_polls_total",
			Help: "Total polls of the features source",
		}),
		swaps: f.NewCounter(prometheus.CounterOpts{
			Name: "features_watcher_swaps_total",
			Help: "Total chain graphs rebuilt and swapped in after a features change",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "features_watcher_errors_total",
			Help: "Total features watcher failures by stage (fetch, parse, build)",
		}, []string{"stage"}),
		build: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "features_graph_build_duration_seconds",
			Help:    "Time to parse features and build a chain graph",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "features_watcher_last_success_timestamp_seconds",
			Help: "Unix time of the last successful read of the features source",
		}),
		stale: f.NewGauge(prometheus.GaugeOpts{
			Name: "features_watcher_stale",
			Help: "Whether the features source has gone unread past the stale threshold (1) or not (0)",
		}),
	}
}

func (m *ServerMetrics) IncWatcherPolls()             { m.watcher.polls.Inc() }
func (m *ServerMetrics) IncWatcherSwaps()             { m.watcher.swaps.Inc() }
func (m *ServerMetrics) IncWatcherError(stage string) { m.watcher.errors.WithLabelValues(stage).Inc() }

func (m *ServerMetrics) ObserveGraphBuildDuration(seconds float64) {
	m.watcher.build.Observe(seconds)
}

func (m *ServerMetrics) SetWatcherLastSuccess(unixSeconds float64) {
	m.watcher.lastSuccess.Set(unixSeconds)
}

func (m *ServerMetrics) SetWatcherStale(stale bool) { setBool(m.watcher.stale, stale) }
