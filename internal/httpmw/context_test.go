package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRequestState(t *testing.T) {
	ctx := context.Background()
	if RequestIDFromContext(ctx) != "" || ClientIPFromContext(ctx) != "" {
		t.Fatal("empty context should have no values")
	}

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithClientIP(ctx, "203.0.113.9")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("request id = %q", got)
	}
	if got := ClientIPFromContext(ctx); got != "203.0.113.9" {
		t.Fatalf("client ip = %q", got)
	}

	if WithRequestID(ctx, "") != ctx || WithClientIP(ctx, "") != ctx {
		t.Fatal("empty values should leave ctx unchanged")
	}
}

func TestRouteSlotSharedWithLaterCopies(t *testing.T) {
	outer := WithRoute(context.Background())
	if WithRoute(outer) != outer {
		t.Fatal("WithRoute should reuse an existing slot")
	}

	inner := WithClientIP(WithRequestID(outer, "req-1"), "198.51.100.1")
	SetRoute(inner, "route.status")

	if got := RouteFromContext(outer); got != "route.status" {
		t.Fatalf("outer route = %q, want the inner SetRoute", got)
	}
}

func TestSetRouteWithoutSlot(t *testing.T) {
	ctx := context.Background()
	SetRoute(ctx, "ignored")
	if got := RouteFromContext(ctx); got != "" {
		t.Fatalf("route = %q, want empty", got)
	}
}

func TestRouteFallsBackToChiPattern(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/-/healthy", func(w http.ResponseWriter, r *http.Request) {
		got = RouteFromContext(r.Context())
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/-/healthy", nil))
	if got != "/-/healthy" {
		t.Fatalf("route = %q", got)
	}
}
