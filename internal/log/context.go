package log

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

type fieldsKey struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the Logger in ctx, or Nop.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return Nop()
	}
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok && l != nil {
		return l
	}
	return Nop()
}

// WithFields returns a copy of ctx whose records gain kv, whichever logger
// writes them. The chain runner uses it so processor logs name their chain
// without each processor adding it.
func WithFields(ctx context.Context, kv ...any) context.Context {
	prev := Fields(ctx)
	fields := make([]slog.Attr, len(prev), len(prev)+len(kv)/2)
	copy(fields, prev)
	return context.WithValue(ctx, fieldsKey{}, appendKV(fields, kv))
}

// Fields returns the attrs added by WithFields.
func Fields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]slog.Attr)
	return fields
}
