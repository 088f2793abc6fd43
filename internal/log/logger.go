package log

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

type logger struct {
	h     slog.Handler
	attrs []slog.Attr
	errs  errorDetail
}

// With returns a child logger. The parent's attrs are copied, so loggers are
// safe to share between goroutines.
func (l *logger) With(kv ...any) Logger {
	attrs := make([]slog.Attr, len(l.attrs), len(l.attrs)+len(kv)/2)
	copy(attrs, l.attrs)
	return &logger{h: l.h, attrs: appendKV(attrs, kv), errs: l.errs}
}

func (l *logger) Debug(ctx context.Context, msg string, kv ...any) {
	l.emit(ctx, slog.LevelDebug, msg, kv)
}

func (l *logger) Info(ctx context.Context, msg string, kv ...any) {
	l.emit(ctx, slog.LevelInfo, msg, kv)
}

func (l *logger) Warn(ctx context.Context, msg string, kv ...any) {
	l.emit(ctx, slog.LevelWarn, msg, kv)
}

func (l *logger) Error(ctx context.Context, err error, msg string, kv ...any) {
	if err != nil {
		kv = append(kv, l.errs.attrs(err)...)
	}
	l.emit(ctx, slog.LevelError, msg, kv)
}

func (l *logger) Sync() error { return nil }

// emit is always called directly from a level method, so the caller sits
// three frames up: runtime.Callers, emit, the level method.
func (l *logger) emit(ctx context.Context, lvl slog.Level, msg string, kv []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.h.Enabled(ctx, lvl) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), lvl, msg, pcs[0])
	r.AddAttrs(l.attrs...)
	r.AddAttrs(appendKV(nil, kv)...)
	_ = l.h.Handle(ctx, r)
}

// appendKV converts alternating key/value pairs. Pairs with a non-string key
// and a trailing unpaired value are dropped.
func appendKV(dst []slog.Attr, kv []any) []slog.Attr {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			dst = append(dst, slog.Any(k, kv[i+1]))
		}
	}
	return dst
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any) {}
func (nopLogger) Warn(context.Context, string, ...any) {}
func (nopLogger) Error(context.Context, error, string, ...any) {}
func (nopLogger) Sync() error { return nil }
func (n nopLogger) With(...any) Logger { return n }

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }
