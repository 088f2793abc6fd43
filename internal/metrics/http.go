package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/reqchain/internal/httpmw"
)

// unmatchedRoute labels requests no handler named, so raw paths never
// become label values.
const unmatchedRoute = "unmatched"

type httpMetrics struct {
	inflight  prometheus.Gauge
	total     *prometheus.CounterVec
	errors    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
	panics    prometheus.Counter
}

func newHTTPMetrics(f promauto.Factory) httpMetrics {
	return httpMetrics{
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		total: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx responses by method and route",
		}, []string{"method", "route"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"method", "route"}),
		panics: f.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total panics recovered while serving requests",
		}),
	}
}

// Middleware records the request metrics. The route label is whatever the
// handler reported with httpmw.SetRoute, else the chi pattern.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	h := &m.http
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := httpmw.WithRoute(r.Context())
		// chi reuses a route context it finds, which makes its pattern
		// visible out here after the router returns
		if chi.RouteContext(ctx) == nil {
			ctx = context.WithValue(ctx, chi.RouteCtxKey, chi.NewRouteContext())
		}
		r = r.WithContext(ctx)

		h.inflight.Inc()
		defer h.inflight.Dec()
		snoop := httpsnoop.CaptureMetrics(next, w, r)

		route := httpmw.RouteFromContext(ctx)
		if route == "" {
			route = unmatchedRoute
		}
		method := r.Method

		h.total.WithLabelValues(method, route, strconv.Itoa(snoop.Code)).Inc()
		if snoop.Code >= 500 {
			h.errors.WithLabelValues(method, route).Inc()
		}
		observe(ctx, h.duration.WithLabelValues(method, route), snoop.Duration.Seconds())
		h.respBytes.WithLabelValues(method, route).Observe(float64(snoop.Written))
	})
}

func (m *ServerMetrics) IncHttpPanic() { m.http.panics.Inc() }

// observe attaches the trace ID as an exemplar when the request was sampled.
func observe(ctx context.Context, o prometheus.Observer, v float64) {
	if ex := traceExemplar(ctx); ex != nil {
		if eo, ok := o.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(v, ex)
			return
		}
	}
	o.Observe(v)
}

func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
