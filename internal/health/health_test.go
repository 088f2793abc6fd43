package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestFixed(t *testing.T) {
	ctx := context.Background()
	if err := Fixed(true, "ignored").Check(ctx); err != nil {
		t.Fatalf("Fixed(true) = %v", err)
	}
	if err := Fixed(false, "disk full").Check(ctx); err == nil || err.Error() != "disk full" {
		t.Fatalf("Fixed(false) = %v", err)
	}
	if err := Fixed(false, "").Check(ctx); err == nil || err.Error() != "unhealthy" {
		t.Fatalf("Fixed(false, \"\") = %v", err)
	}
}

func TestNamed(t *testing.T) {
	base := errors.New("no chain graph loaded")
	err := Named("chains", Fixed(false, base.Error())).Check(context.Background())
	if err == nil || err.Error() != "chains: no chain graph loaded" {
		t.Fatalf("Named = %v", err)
	}
	if err := Named("chains", Fixed(true, "")).Check(context.Background()); err != nil {
		t.Fatalf("passing probe = %v", err)
	}
}

func TestAll(t *testing.T) {
	ctx := context.Background()
	if err := All().Check(ctx); err != nil {
		t.Fatalf("empty All = %v", err)
	}
	if err := All(Fixed(true, ""), nil, Fixed(true, "")).Check(ctx); err != nil {
		t.Fatalf("passing All = %v", err)
	}

	calls := 0
	counted := CheckFunc(func(context.Context) error { calls++; return nil })
	err := All(Fixed(false, "draining"), counted, Fixed(false, "graph not built")).Check(ctx)
	if err == nil {
		t.Fatal("All should fail")
	}
	if got := err.Error(); got != "draining\ngraph not built" {
		t.Fatalf("All error = %q, want both reasons", got)
	}
	if calls != 1 {
		t.Fatal("All should check every probe")
	}
}

func TestAny(t *testing.T) {
	ctx := context.Background()
	if err := Any(Fixed(false, "a"), Fixed(true, "")).Check(ctx); err != nil {
		t.Fatalf("Any with one passing = %v", err)
	}
	if err := Any(Fixed(false, "a"), Fixed(false, "b")).Check(ctx); err == nil || err.Error() != "b" {
		t.Fatalf("Any all failing = %v, want last", err)
	}
	if err := Any(nil).Check(ctx); err == nil {
		t.Fatal("Any with no probes should fail")
	}
}

func TestGate(t *testing.T) {
	var g Gate
	p := g.Probe()
	ctx := context.Background()

	if err := p.Check(ctx); err != nil {
		t.Fatalf("zero gate = %v", err)
	}
	g.Hold("draining for deploy")
	if err := p.Check(ctx); err == nil || err.Error() != "draining for deploy" {
		t.Fatalf("held gate = %v", err)
	}
	g.Hold("")
	if err := p.Check(ctx); err == nil || err.Error() != "draining" {
		t.Fatalf("held gate default reason = %v", err)
	}
	g.Release()
	if err := p.Check(ctx); err != nil {
		t.Fatalf("released gate = %v", err)
	}
}

func TestGate_Concurrent(t *testing.T) {
	var g Gate
	p := g.Probe()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); g.Hold("x"); g.Release() }()
		go func() { defer wg.Done(); _ = p.Check(context.Background()) }()
	}
	wg.Wait()
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name   string
		h      http.HandlerFunc
		method string
		code   int
		body   string
	}{
		{"healthz ok", HealthzHandler(Fixed(true, "")), http.MethodGet, 200, "ok\n"},
		{"readyz ok", ReadyzHandler(nil), http.MethodGet, 200, "ready\n"},
		{"readyz failing", ReadyzHandler(All(Fixed(false, "draining"), Fixed(false, "no graph"))), http.MethodGet, 503, "draining\nno graph\n"},
		{"head has no body", HealthzHandler(Fixed(false, "down")), http.MethodHead, 503, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.h(rec, httptest.NewRequest(tt.method, "/", nil))
			if rec.Code != tt.code || rec.Body.String() != tt.body {
				t.Fatalf("got %d %q, want %d %q", rec.Code, rec.Body.String(), tt.code, tt.body)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Fatal("probe responses must not be cached")
			}
			if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
				t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}
