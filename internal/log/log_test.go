package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/reqchain/internal/xerrors"
)

func newJSON(t *testing.T, opts Options) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts.Writer = &buf
	opts.JsonFormat = true
	l, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, &buf
}

// records decodes every JSON line written to buf.
func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func last(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	recs := records(t, buf)
	if len(recs) == 0 {
		t.Fatal("no log records written")
	}
	return recs[len(recs)-1]
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" Warn ", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	for _, bad := range []string{"", "trace", "warning"} {
		if _, err := ParseLevel(bad); err == nil {
			t.Errorf("ParseLevel(%q) accepted", bad)
		}
	}
}

func TestNew_DefaultsToStdout(t *testing.T) {
	l, err := New(Options{App: "reqchain"})
	if err != nil || l == nil {
		t.Fatalf("New = %v, %v", l, err)
	}
}

func TestRecordShape(t *testing.T) {
	l, buf := newJSON(t, Options{App: "reqchain", Version: "1.2.3"})
	l.Info(context.Background(), "graph built", "chains", 7)

	rec := last(t, buf)
	want := map[string]any{"msg": "graph built", "level": "INFO", "app": "reqchain", "version": "1.2.3", "chains": float64(7)}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
	src, _ := rec["source"].(map[string]any)
	if file, _ := src["file"].(string); !strings.HasSuffix(file, "log_test.go") {
		t.Errorf("source file = %v, want the calling test file", src["file"])
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newJSON(t, Options{Level: slog.LevelWarn})
	ctx := context.Background()
	l.Debug(ctx, "d")
	l.Info(ctx, "i")
	l.Warn(ctx, "w")
	l.Error(ctx, nil, "e")

	var msgs []string
	for _, r := range records(t, buf) {
		msgs = append(msgs, r["msg"].(string))
	}
	if got := strings.Join(msgs, ","); got != "w,e" {
		t.Fatalf("logged %q, want w,e", got)
	}
}

func TestWith_DoesNotLeakIntoParent(t *testing.T) {
	l, buf := newJSON(t, Options{})
	child := l.With("component", "watcher", 42, "dropped", "odd")
	child.Info(context.Background(), "child")
	l.Info(context.Background(), "parent")

	recs := records(t, buf)
	if recs[0]["component"] != "watcher" {
		t.Errorf("child record missing component: %v", recs[0])
	}
	if _, ok := recs[0]["odd"]; ok {
		t.Errorf("unpaired key logged: %v", recs[0])
	}
	if _, ok := recs[1]["component"]; ok {
		t.Errorf("parent record has child field: %v", recs[1])
	}
}

func TestContextFields(t *testing.T) {
	l, buf := newJSON(t, Options{})
	ctx := WithFields(context.Background(), "chain", "http.entry")
	ctx = WithFields(ctx, "processor", "take-token")
	l.Info(ctx, "processing")

	rec := last(t, buf)
	if rec["chain"] != "http.entry" || rec["processor"] != "take-token" {
		t.Fatalf("context fields missing: %v", rec)
	}
	if n := len(Fields(WithFields(context.Background(), "a", 1))); n != 1 {
		t.Fatalf("Fields len = %d, want 1", n)
	}
}

func TestTraceCorrelation(t *testing.T) {
	l, buf := newJSON(t, Options{})
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	l.Info(trace.ContextWithSpanContext(context.Background(), sc), "traced")

	rec := last(t, buf)
	if rec["trace_id"] != sc.TraceID().String() || rec["span_id"] != sc.SpanID().String() {
		t.Fatalf("trace ids = %v/%v", rec["trace_id"], rec["span_id"])
	}

	l.Info(context.Background(), "untraced")
	if _, ok := last(t, buf)["trace_id"]; ok {
		t.Fatal("trace_id set without a span")
	}
}

type notFoundErr struct{ name string }

func (e *notFoundErr) Error() string { return e.name + " not found" }

func TestError_Detail(t *testing.T) {
	l, buf := newJSON(t, Options{IncludeErrorLinks: true})
	root := &notFoundErr{name: "chain"}
	err := xerrors.Wrap(fmt.Errorf("lookup: %w", root), "build graph")
	l.Error(context.Background(), err, "build failed")

	rec := last(t, buf)
	if rec["error_type"] != "*log.notFoundErr" {
		t.Errorf("error_type = %v", rec["error_type"])
	}
	if rec["cause_type"] != "*log.notFoundErr" {
		t.Errorf("cause_type = %v", rec["cause_type"])
	}
	chain, _ := rec["error_chain"].([]any)
	if len(chain) != 3 || chain[2] != "chain not found" {
		t.Errorf("error_chain = %v", chain)
	}
	links, _ := rec["error_links"].([]any)
	if len(links) != 1 {
		t.Fatalf("error_links = %v, want only the wrap with a call site", links)
	}
	if fn, _ := links[0].(map[string]any)["func"].(string); !strings.Contains(fn, "TestError_Detail") {
		t.Errorf("link func = %q", fn)
	}
	if stack, _ := rec["stack"].(string); !strings.Contains(stack, "TestError_Detail") {
		t.Errorf("stack does not start at the caller:\n%s", stack)
	}
}

func TestError_JoinedAndCapped(t *testing.T) {
	l, buf := newJSON(t, Options{IncludeErrorLinks: true, MaxErrorLinks: 1})
	err := errors.Join(errors.New("a"), errors.New("b"))
	l.Error(context.Background(), err, "joined")

	rec := last(t, buf)
	chain, _ := rec["error_chain"].([]any)
	if len(chain) != 3 || chain[1] != "a" || chain[2] != "b" {
		t.Errorf("error_chain = %v", chain)
	}
	if links, _ := rec["error_links"].([]any); len(links) != 1 {
		t.Errorf("error_links = %v, want 1", links)
	}
}

func TestError_StackFromCapturedError(t *testing.T) {
	l, buf := newJSON(t, Options{})
	err := newStackedError()
	l.Error(context.Background(), xerrors.Wrap(err, "outer"), "failed")

	if stack, _ := last(t, buf)["stack"].(string); !strings.Contains(stack, "newStackedError") {
		t.Fatalf("stack should come from the error, got:\n%s", stack)
	}
}

func newStackedError() error { return xerrors.New("boom") }

func TestStacktraceLevel(t *testing.T) {
	l, buf := newJSON(t, Options{StacktraceLevel: slog.LevelWarn})
	l.Warn(context.Background(), "slow")
	if _, ok := last(t, buf)["stack"]; !ok {
		t.Fatal("warn record missing stack")
	}
	l.Info(context.Background(), "fine")
	if _, ok := last(t, buf)["stack"]; ok {
		t.Fatal("info record has stack")
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Options{App: "reqchain", Writer: &buf})
	l.Info(context.Background(), "hello", "k", "v")
	if out := buf.String(); !strings.Contains(out, "msg=hello") || !strings.Contains(out, "k=v") {
		t.Fatalf("text output = %q", out)
	}
}

func TestContextLogger(t *testing.T) {
	if _, ok := FromContext(context.Background()).(nopLogger); !ok {
		t.Fatal("FromContext without a logger should return Nop")
	}
	//nolint:staticcheck // nil context is tolerated
	if _, ok := FromContext(nil).(nopLogger); !ok {
		t.Fatal("FromContext(nil) should return Nop")
	}
	l, buf := newJSON(t, Options{})
	FromContext(WithContext(context.Background(), l)).Info(context.Background(), "via ctx")
	if last(t, buf)["msg"] != "via ctx" {
		t.Fatal("logger not carried by context")
	}
}

func TestNop(t *testing.T) {
	n := Nop()
	ctx := context.Background()
	n.Debug(ctx, "x")
	n.Info(ctx, "x")
	n.Warn(ctx, "x")
	n.Error(ctx, errors.New("x"), "x")
	if n.With("a", 1) != n || n.Sync() != nil {
		t.Fatal("Nop should be inert")
	}
}
