package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// enrichHandler adds trace correlation, context fields and, at stackAt and
// above, a stack trace before passing records on.
type enrichHandler struct {
	next    slog.Handler
	stackAt slog.Level
}

func (h *enrichHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h *enrichHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	r.AddAttrs(Fields(ctx)...)

	if r.Level >= h.stackAt {
		r.AddAttrs(slog.String("stack", recordStack(r)))
	}
	return h.next.Handle(ctx, r)
}

func (h *enrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &enrichHandler{next: h.next.WithAttrs(attrs), stackAt: h.stackAt}
}

func (h *enrichHandler) WithGroup(name string) slog.Handler {
	return &enrichHandler{next: h.next.WithGroup(name), stackAt: h.stackAt}
}

// recordStack prefers the stack captured when the logged error was created
// over the stack of the log call.
func recordStack(r slog.Record) string {
	var pcs []uintptr
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "err" {
			return true
		}
		var st stackTracer
		if err, ok := a.Value.Any().(error); ok && errors.As(err, &st) {
			pcs = st.StackPCs()
		}
		return false
	})
	if len(pcs) == 0 {
		buf := make([]uintptr, 64)
		pcs = buf[:runtime.Callers(1, buf)]
	}
	return formatFrames(pcs)
}

// formatFrames renders pcs as "func\n\tfile:line" pairs, starting at the
// first frame outside the logging machinery. Runtime frames such as
// gopanic are left out so a recovered panic shows the code that panicked.
func formatFrames(pcs []uintptr) string {
	var b strings.Builder
	started := false
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		switch {
		case fr.Function == "runtime.goexit", fr.Function == "runtime.main":
			more = false
		case fr.Function == "", strings.HasPrefix(fr.Function, "runtime."):
		case !started && isLoggingFrame(fr.Function):
		default:
			started = true
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		}
		if !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// isLoggingFrame matches slog and this package's logger and handler, but
// not other functions that happen to live here.
func isLoggingFrame(fn string) bool {
	if strings.HasPrefix(fn, "log/slog.") {
		return true
	}
	i := strings.LastIndex(fn, "/internal/log.")
	if i < 0 {
		return false
	}
	rest := fn[i+len("/internal/log."):]
	return strings.HasPrefix(rest, "(*logger).") ||
		strings.HasPrefix(rest, "(*enrichHandler).") ||
		rest == "recordStack"
}
