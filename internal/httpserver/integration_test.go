package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/health"
	"github.com/keithlinneman/reqchain/internal/httpchain"
	"github.com/keithlinneman/reqchain/internal/httpserver"
	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/metadata"
	"github.com/keithlinneman/reqchain/internal/metrics"
	"github.com/keithlinneman/reqchain/internal/module"
	"github.com/keithlinneman/reqchain/internal/modules/httpcore"
	"github.com/keithlinneman/reqchain/internal/modules/jsonbody"
	"github.com/keithlinneman/reqchain/internal/modules/ratelimit"
	"github.com/keithlinneman/reqchain/internal/modules/routing"
	"github.com/keithlinneman/reqchain/internal/modules/secheaders"
)

// TestIntegration_FullStack wires httpserver.NewHandler to a chain registry
// built from the real modules, then checks routing, error mapping, security
// headers and rate limiting end-to-end.
func TestIntegration_FullStack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	limiter := ratelimit.NewLimiter(ctx, ratelimit.WithRate(0.001, 3))

	routes := routing.NewRoutes().
		Static(routing.StaticRoute{
			Name:   "status",
			Method: http.MethodGet,
			Path:   "/status",
			Body:   map[string]any{"ok": true},
		}).
		Static(routing.StaticRoute{
			Name:   "ping",
			Method: http.MethodPost,
			Path:   "/events",
			Expr:   `meta["ext"]["body.kind"] == "ping"`,
			Status: http.StatusAccepted,
			Body:   map[string]any{"pong": true},
		}).
		HandleFunc(http.MethodPost, "/events", func(_ context.Context, md *metadata.MetaData) error {
			return httpchain.Errorf(http.StatusUnprocessableEntity, "unknown event")
		})

	obs := metrics.New()
	reg, err := module.NewBuilder().
		AddModule(httpcore.New(), secheaders.New(), jsonbody.New(), ratelimit.New(limiter, 7*time.Second)).
		AddConfigurator(routes).
		WithChainOptions(chain.WithObserver(obs.ChainObserver())).
		Build(ctx)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	handler := httpserver.NewHandler(&httpserver.Options{
		Logger:       log.Nop(),
		UseRecoverMW: true,
		MetricsMW:    obs.Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    health.Fixed(true, ""),
		Chains:       httpchain.NewHandler(reg, ""),
	})

	// each client address has its own bucket of 3
	do := func(t *testing.T, remote, method, target, body string) *httptest.ResponseRecorder {
		t.Helper()
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, target, http.NoBody)
		} else {
			req = httptest.NewRequest(method, target, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}
		req.RemoteAddr = remote + ":40000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
		t.Helper()
		var out map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %q: %v", rec.Body.String(), err)
		}
		return out
	}

	t.Run("static route with security headers", func(t *testing.T) {
		rec := do(t, "198.51.100.1", http.MethodGet, "/status", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := decode(t, rec); got["ok"] != true {
			t.Fatalf("body = %v, want ok=true", got)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Fatalf("Content-Type = %q, want application/json", ct)
		}
		for _, hdr := range []string{
			"Strict-Transport-Security",
			"Content-Security-Policy",
			"X-Content-Type-Options",
			"X-Frame-Options",
		} {
			if rec.Header().Get(hdr) == "" {
				t.Errorf("missing security header: %s", hdr)
			}
		}
	})

	t.Run("not found carries request id", func(t *testing.T) {
		rec := do(t, "198.51.100.2", http.MethodGet, "/nope", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		body := decode(t, rec)
		if body["error"] != "not found" {
			t.Fatalf("error = %v, want not found", body["error"])
		}
		if id := rec.Header().Get("X-Request-Id"); id == "" || body["request_id"] != id {
			t.Fatalf("request_id = %v, header = %q", body["request_id"], id)
		}
		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Fatal("security headers missing on 404")
		}
	})

	t.Run("condition on decoded body", func(t *testing.T) {
		rec := do(t, "198.51.100.3", http.MethodPost, "/events", `{"kind":"ping"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202, body %s", rec.Code, rec.Body.String())
		}

		rec = do(t, "198.51.100.3", http.MethodPost, "/events", `{"kind":"other"}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
		if got := decode(t, rec); got["error"] != "unknown event" {
			t.Fatalf("error = %v, want unknown event", got["error"])
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		rec := do(t, "198.51.100.4", http.MethodPost, "/events", `{"kind":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("rate limited per client", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if rec := do(t, "198.51.100.5", http.MethodGet, "/status", ""); rec.Code != http.StatusOK {
				t.Fatalf("request %d status = %d, want 200", i, rec.Code)
			}
		}
		rec := do(t, "198.51.100.5", http.MethodGet, "/status", "")
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want 429", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "7" {
			t.Fatalf("Retry-After = %q, want 7", got)
		}
		if rec.Header().Get("Strict-Transport-Security") == "" {
			t.Fatal("security headers missing on 429")
		}

		// another client is unaffected
		if rec := do(t, "198.51.100.6", http.MethodGet, "/status", ""); rec.Code != http.StatusOK {
			t.Fatalf("other client status = %d, want 200", rec.Code)
		}
	})

	t.Run("health bypasses chains", func(t *testing.T) {
		for _, p := range []string{"/-/healthy", "/-/ready"} {
			rec := do(t, "198.51.100.7", http.MethodGet, p, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("%s status = %d, want 200", p, rec.Code)
			}
			if rec.Header().Get("Strict-Transport-Security") != "" {
				t.Fatalf("%s should not run the respond chain", p)
			}
		}
	})
}
