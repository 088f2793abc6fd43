package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/keithlinneman/reqchain/internal/chain"
)

type chainMetrics struct {
	entered  *prometheus.CounterVec
	failures *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	hops     prometheus.Histogram
	graph    *prometheus.GaugeVec
}

func newChainMetrics(f promauto.Factory) chainMetrics {
	return chainMetrics{
		entered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chain_entered_total",
			Help: "Total times a request entered each chain",
		}, []string{"chain"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chain_processor_errors_total",
			Help: "Total processor and rule failures routed to an exception action, by chain",
		}, []string{"chain"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chain_runs_total",
			Help: "Total graph runs by entry chain and outcome (consumed, dropped, error)",
		}, []string{"entry", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chain_run_duration_seconds",
			Help:    "Time from entering the graph until a terminal action, by entry chain",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"entry"}),
		hops: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "chain_hops",
			Help:    "Number of chains entered per run",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 16, 32, 64, 128, 256},
		}),
		graph: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chain_graph_info",
			Help: "Built chain graph (label carries the chain count, value is always 1)",
		}, []string{"chains"}),
	}
}

// SetChainGraph records the size of the graph serving requests.
func (m *ServerMetrics) SetChainGraph(chains int) {
	m.chains.graph.Reset()
	m.chains.graph.WithLabelValues(strconv.Itoa(chains)).Set(1)
}

// ChainObserver feeds chain execution events into the chain_* metrics.
type ChainObserver struct {
	m *chainMetrics
}

func (m *ServerMetrics) ChainObserver() *ChainObserver {
	return &ChainObserver{m: &m.chains}
}

func (o *ChainObserver) ChainEntered(_ context.Context, c chain.Name) {
	o.m.entered.WithLabelValues(string(c)).Inc()
}

func (o *ChainObserver) ProcessorFailed(_ context.Context, c chain.Name, _ string, _ error) {
	o.m.failures.WithLabelValues(string(c)).Inc()
}

func (o *ChainObserver) Finished(ctx context.Context, entry chain.Name, res chain.Result, err error, elapsed time.Duration) {
	outcome := res.Outcome.String()
	if err != nil {
		outcome = "error"
	}
	o.m.runs.WithLabelValues(string(entry), outcome).Inc()
	observe(ctx, o.m.duration.WithLabelValues(string(entry)), elapsed.Seconds())
	o.m.hops.Observe(float64(len(res.Path)))
}

var _ chain.Observer = (*ChainObserver)(nil)
