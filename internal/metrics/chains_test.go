package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

func buildObservedRegistry(t *testing.T, m *ServerMetrics, opts ...chain.Option) *chain.Registry {
	t.Helper()
	b := chain.NewBuilder(nil)
	ext := b.Extender("test")
	for _, err := range []error{
		ext.CreateChain("entry", chain.Jump{Target: "work"}, chain.Jump{Target: "failed"}),
		ext.CreateChain("work", chain.Consume{}, chain.Jump{Target: "failed"}),
		ext.CreateChain("failed", chain.Drop{}, chain.Drop{}),
		ext.AppendProcessor("work", chain.NamedFunc("maybe-fail", func(_ context.Context, md *metadata.MetaData) error {
			if _, ok := md.Extension("fail"); ok {
				return errors.New("boom")
			}
			return nil
		})),
	} {
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	reg, err := b.Build(append([]chain.Option{chain.WithObserver(m.ChainObserver())}, opts...)...)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return reg
}

func TestChainObserver_CountsRuns(t *testing.T) {
	m := New()
	reg := buildObservedRegistry(t, m)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := reg.Run(ctx, "entry", metadata.New()); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	md := metadata.New()
	md.SetUnchecked("fail", true)
	if _, err := reg.Run(ctx, "entry", md); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(m.chains.runs.WithLabelValues("entry", "consumed")); got != 3 {
		t.Fatalf("consumed runs = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.chains.runs.WithLabelValues("entry", "dropped")); got != 1 {
		t.Fatalf("dropped runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.chains.entered.WithLabelValues("entry")); got != 4 {
		t.Fatalf("entry entered = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.chains.entered.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed entered = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.chains.failures.WithLabelValues("work")); got != 1 {
		t.Fatalf("work processor errors = %v, want 1", got)
	}
	if got := histogramCount(t, m.reg, "chain_hops"); got != 4 {
		t.Fatalf("chain_hops samples = %d, want 4", got)
	}
	if got := histogramCount(t, m.reg, "chain_run_duration_seconds"); got != 4 {
		t.Fatalf("chain_run_duration_seconds samples = %d, want 4", got)
	}
}

func TestChainObserver_RunErrorOutcome(t *testing.T) {
	m := New()
	reg := buildObservedRegistry(t, m)

	if _, err := reg.Run(context.Background(), "missing", metadata.New()); err == nil {
		t.Fatal("Run on unknown entry should fail")
	}
	if got := testutil.ToFloat64(m.chains.runs.WithLabelValues("missing", "error")); got != 1 {
		t.Fatalf("error runs = %v, want 1", got)
	}
}

func TestSetChainGraph(t *testing.T) {
	m := New()
	m.SetChainGraph(5)
	m.SetChainGraph(9)

	if n := testutil.CollectAndCount(m.chains.graph); n != 1 {
		t.Fatalf("chain_graph_info series = %d, want only the latest graph", n)
	}
	if got := testutil.ToFloat64(m.chains.graph.WithLabelValues("9")); got != 1 {
		t.Fatalf("chain_graph_info{chains=9} = %v", got)
	}
}
