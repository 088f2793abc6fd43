package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/httpchain"
	"github.com/keithlinneman/reqchain/internal/httpmw"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

var okKey = metadata.NewKey[bool]("ratelimit_test.ok")

func buildRegistry(t *testing.T, m *Module) *chain.Registry {
	t.Helper()
	b := chain.NewBuilder(nil)
	core := b.Extender("core")
	for _, err := range []error{
		core.CreateChain(httpchain.EntryChain, chain.Jump{Target: httpchain.RespondChain}, chain.Jump{Target: httpchain.ExceptionChain}),
		core.CreateChain(httpchain.RespondChain, chain.Consume{}, chain.Drop{}),
		core.CreateChain(httpchain.ExceptionChain, chain.Jump{Target: httpchain.RespondChain}, chain.Drop{}),
		core.AppendProcessor(httpchain.EntryChain, chain.NamedFunc("ok", func(_ context.Context, md *metadata.MetaData) error {
			metadata.Set(md, okKey, true)
			httpchain.Respond(md, http.StatusOK, "ok")
			return nil
		})),
	} {
		if err != nil {
			t.Fatalf("core setup: %v", err)
		}
	}
	if err := m.Register(b.Extender("ratelimit")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return reg
}

func handle(t *testing.T, reg *chain.Registry, clientIP string) (*metadata.MetaData, chain.Result) {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if clientIP != "" {
		r = r.WithContext(httpmw.WithClientIP(r.Context(), clientIP))
	}
	md, res, err := reg.Handle(context.Background(), httpchain.EntryChain, httpchain.NewRequest(r))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	return md, res
}

func TestModule_LimitsPerClient(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(1, 2))
	defer cancel()
	reg := buildRegistry(t, New(l, 0))

	for i := 0; i < 2; i++ {
		md, _ := handle(t, reg, "203.0.113.1")
		if status, _ := metadata.Lookup(md, httpchain.StatusKey); status != http.StatusOK {
			t.Fatalf("request %d: status %d, want 200", i+1, status)
		}
	}

	md, res := handle(t, reg, "203.0.113.1")
	if status, _ := metadata.Lookup(md, httpchain.StatusKey); status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", status)
	}
	want := []chain.Name{httpchain.EntryChain, LimitedChain, httpchain.RespondChain}
	if len(res.Path) != len(want) {
		t.Fatalf("path = %v, want %v", res.Path, want)
	}
	for i := range want {
		if res.Path[i] != want[i] {
			t.Fatalf("path = %v, want %v", res.Path, want)
		}
	}
	if got := httpchain.ResponseHeaders(md).Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want 30", got)
	}
	body, _ := metadata.Lookup(md, httpchain.ResponseBodyKey)
	if eb, ok := body.(httpchain.ErrorBody); !ok || eb.Error != "too many requests" {
		t.Errorf("body = %#v", body)
	}

	// other clients keep their own bucket
	md, _ = handle(t, reg, "203.0.113.2")
	if status, _ := metadata.Lookup(md, httpchain.StatusKey); status != http.StatusOK {
		t.Fatalf("second client: status %d, want 200", status)
	}
}

func TestModule_FlagsDeniedRequest(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(1, 1))
	defer cancel()
	reg := buildRegistry(t, New(l, 0))

	handle(t, reg, "203.0.113.1")
	md, _ := handle(t, reg, "203.0.113.1")

	// processors on entry still run, the rule only decides where to go next
	if !md.Contains(LimitedKey) {
		t.Fatal("LimitedKey not set on denied request")
	}
	if !md.Contains(okKey) {
		t.Fatal("entry processors should run before the entry rules")
	}
}

func TestModule_UnknownClientsShareBucket(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(1, 1))
	defer cancel()
	reg := buildRegistry(t, New(l, 5*time.Second))

	handle(t, reg, "")
	md, _ := handle(t, reg, "")
	if status, _ := metadata.Lookup(md, httpchain.StatusKey); status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", status)
	}
	if got := httpchain.ResponseHeaders(md).Get("Retry-After"); got != "5" {
		t.Errorf("Retry-After = %q, want 5", got)
	}
}
