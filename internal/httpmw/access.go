package httpmw

import (
	"context"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/reqchain/internal/log"
)

// writeTracker records what the handler sent and, when the request is
// traced, a response.write span from the first byte to the end of the
// handler.
type writeTracker struct {
	ctx   context.Context
	start time.Time

	status  int
	bytes   int64
	blocked time.Duration
	err     error

	span    trace.Span
	started bool
}

func (t *writeTracker) begin() {
	if t.started {
		return
	}
	t.started = true
	ttfb := time.Since(t.start)
	if !trace.SpanFromContext(t.ctx).IsRecording() {
		return
	}
	_, t.span = otel.Tracer("reqchain/httpmw").Start(t.ctx, "response.write",
		trace.WithAttributes(attribute.Float64("http.server.ttfb_seconds", ttfb.Seconds())))
}

func (t *writeTracker) wrote(n int64, blocked time.Duration, err error) {
	if t.status == 0 {
		t.status = http.StatusOK
	}
	t.bytes += n
	t.blocked += blocked
	if err != nil && t.err == nil {
		t.err = err
	}
}

func (t *writeTracker) wrap(w http.ResponseWriter) http.ResponseWriter {
	return httpsnoop.Wrap(w, httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				t.begin()
				if t.status == 0 {
					t.status = code
				}
				s := time.Now()
				next(code)
				t.blocked += time.Since(s)
			}
		},
		Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				t.begin()
				s := time.Now()
				n, err := next(b)
				t.wrote(int64(n), time.Since(s), err)
				return n, err
			}
		},
		ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
			return func(src io.Reader) (int64, error) {
				t.begin()
				s := time.Now()
				n, err := next(src)
				t.wrote(n, time.Since(s), err)
				return n, err
			}
		},
	})
}

func (t *writeTracker) finish() int {
	if t.status == 0 {
		t.status = http.StatusOK
	}
	if t.span == nil {
		return t.status
	}
	t.span.SetAttributes(
		attribute.Int("http.response.status_code", t.status),
		attribute.Int64("http.response.body.size", t.bytes),
		attribute.Float64("http.server.write.block_seconds", t.blocked.Seconds()),
	)
	if t.err != nil {
		t.span.RecordError(t.err)
		t.span.SetStatus(codes.Error, t.err.Error())
	}
	t.span.End()
	return t.status
}

// AccessLog writes one record per request with the logger WithLogger put in
// the context. Requests for the paths in skip are served but not logged.
func AccessLog(skip ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := &writeTracker{ctx: r.Context(), start: time.Now()}
			next.ServeHTTP(t.wrap(w), r)
			status := t.finish()

			if slices.Contains(skip, r.URL.Path) {
				return
			}
			ctx := r.Context()
			route := RouteFromContext(ctx)
			if route == "" {
				route = r.URL.Path
			}
			log.FromContext(ctx).Info(ctx, "http request",
				"http.response.status_code", status,
				"http.server.request.duration", time.Since(t.start).Seconds(),
				"http.response.body.size", t.bytes,
				"http.request.body.size", max(r.ContentLength, 0),
				"http.route", route,
			)
		})
	}
}
