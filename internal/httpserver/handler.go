package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/reqchain/internal/health"
	"github.com/keithlinneman/reqchain/internal/httpmw"
	"github.com/keithlinneman/reqchain/internal/log"
)

const (
	healthyPath = "/-/healthy"
	readyPath   = "/-/ready"
)

func isProbe(r *http.Request) bool {
	return r.URL.Path == healthyPath || r.URL.Path == readyPath
}

// NewHandler builds the public handler. Health probes are answered here,
// everything else goes to opts.Chains, which owns routing, not-found and
// method handling.
func NewHandler(opts *Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Compress(5, "application/json", "application/problem+json", "text/plain", "text/html"),
		httpmw.AnnotateHTTPRoute,
		httpmw.AccessLog(healthyPath, readyPath),
		httpmw.MaxBody(maxBody),
	)

	probes := r.With(httpmw.Scope("health"))
	if opts.Health != nil {
		probes.Get(healthyPath, health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		probes.Get(readyPath, health.ReadyzHandler(opts.Readiness))
	}

	if opts.Chains != nil {
		chains := r.With(httpmw.Scope("chains"))
		chains.Handle("/", opts.Chains)
		chains.Handle("/*", opts.Chains)
	}

	var recoverMW httpmw.Middleware
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(L, opts.OnPanic)
	}

	return httpmw.Chain(r,
		recoverMW,
		httpmw.RequestID(httpmw.RequestIDHeader),
		// before logging and the chain's rate limiter, both key on it
		httpmw.ClientIP(opts.ClientIPOpts),
		otelhttp.NewMiddleware("http.server",
			otelhttp.WithFilter(func(r *http.Request) bool { return !isProbe(r) }),
			// AnnotateHTTPRoute renames the span once the chain route is known
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
		),
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		opts.MetricsMW,
		httpmw.WithLogger(L),
	)
}
