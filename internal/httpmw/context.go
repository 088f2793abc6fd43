package httpmw

import (
	"context"

	"github.com/go-chi/chi/v5"
)

// requestState holds what this package resolves for a request. Setters store
// a modified copy. The route slot is a pointer so a handler deep in the stack
// can report its route to middleware further out.
type requestState struct {
	id       string
	clientIP string
	route    *string
}

type stateKey struct{}

func stateFrom(ctx context.Context) requestState {
	s, _ := ctx.Value(stateKey{}).(requestState)
	return s
}

func withState(ctx context.Context, s requestState) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	s := stateFrom(ctx)
	s.id = id
	return withState(ctx, s)
}

// RequestIDFromContext returns "" outside the RequestID middleware.
func RequestIDFromContext(ctx context.Context) string { return stateFrom(ctx).id }

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	s := stateFrom(ctx)
	s.clientIP = ip
	return withState(ctx, s)
}

func ClientIPFromContext(ctx context.Context) string { return stateFrom(ctx).clientIP }

// WithRoute gives ctx a route slot for SetRoute, keeping one that is
// already there.
func WithRoute(ctx context.Context) context.Context {
	s := stateFrom(ctx)
	if s.route != nil {
		return ctx
	}
	s.route = new(string)
	return withState(ctx, s)
}

// SetRoute names the route of the request in flight. The chain handler calls
// it once routing has run, since chi only sees its catch-all pattern. Names
// become metric labels and must come from a bounded set. Without a slot from
// WithRoute it does nothing.
func SetRoute(ctx context.Context, route string) {
	if s := stateFrom(ctx); s.route != nil {
		*s.route = route
	}
}

// RouteFromContext returns the SetRoute name, else the chi pattern, else "".
func RouteFromContext(ctx context.Context) string {
	if s := stateFrom(ctx); s.route != nil && *s.route != "" {
		return *s.route
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
