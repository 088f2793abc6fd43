package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/modules/ratelimit"
)

type fakeSource struct {
	mu    sync.Mutex
	doc   string
	err   error
	reads int
}

func (f *fakeSource) FeaturesDoc(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.doc), nil
}

func (f *fakeSource) String() string { return "fake" }

func (f *fakeSource) set(doc string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc, f.err = doc, err
}

type fakeWatcherMetrics struct {
	polls, swaps, builds int
	errs                 []string
	stale                bool
	lastSuccess          float64
}

func (m *fakeWatcherMetrics) IncWatcherPolls() { m.polls++ }
func (m *fakeWatcherMetrics) IncWatcherSwaps() { m.swaps++ }
func (m *fakeWatcherMetrics) IncWatcherError(stage string) { m.errs = append(m.errs, stage) }
func (m *fakeWatcherMetrics) ObserveGraphBuildDuration(float64) { m.builds++ }
func (m *fakeWatcherMetrics) SetWatcherLastSuccess(ts float64) { m.lastSuccess = ts }
func (m *fakeWatcherMetrics) SetWatcherStale(stale bool) { m.stale = stale }

const (
	withRateLimit    = `modules = ["secheaders", "ratelimit", "routing"]`
	withoutRateLimit = `modules = ["routing"]`
)

func newTestWatcher(src *fakeSource, m *fakeWatcherMetrics, opts ...func(*WatcherOptions)) *Watcher {
	o := &WatcherOptions{Source: src, PollInterval: time.Hour}
	if m != nil {
		o.Metrics = m
	}
	for _, fn := range opts {
		fn(o)
	}
	return NewWatcher(o)
}

func hasChain(reg *chain.Registry, name chain.Name) bool {
	_, ok := reg.Chain(name)
	return ok
}

func TestWatcher_Load(t *testing.T) {
	src := &fakeSource{doc: withRateLimit}
	m := &fakeWatcherMetrics{}
	w := newTestWatcher(src, m)

	require.ErrorIs(t, w.Live().ReadyErr(), ErrNoGraph)
	require.NoError(t, w.Load(context.Background()))
	t.Cleanup(w.Live().Close)

	snap, ok := w.Live().Get()
	require.True(t, ok)
	assert.True(t, hasChain(snap.Registry, ratelimit.LimitedChain))
	assert.Equal(t, hashDoc([]byte(withRateLimit)), snap.Hash)
	assert.Equal(t, "fake", snap.Source)
	assert.False(t, snap.LoadedAt.IsZero())
	assert.NoError(t, w.Live().ReadyErr())
	assert.Equal(t, 1, m.swaps)
	assert.NotZero(t, m.lastSuccess)
}

func TestWatcher_LoadFailures(t *testing.T) {
	boom := errors.New("ssm down")
	w := newTestWatcher(&fakeSource{err: boom}, nil)
	assert.ErrorIs(t, w.Load(context.Background()), boom)

	w = newTestWatcher(&fakeSource{doc: `modules = ["nope"]`}, nil)
	assert.Error(t, w.Load(context.Background()))
	assert.Nil(t, w.Live().Registry())
}

func TestWatcher_NoChange(t *testing.T) {
	src := &fakeSource{doc: withRateLimit}
	m := &fakeWatcherMetrics{}
	w := newTestWatcher(src, m)
	require.NoError(t, w.Load(context.Background()))
	t.Cleanup(w.Live().Close)
	before := w.Live().Registry()

	assert.Equal(t, pollNoChange, w.checkOnce(context.Background()))
	assert.Same(t, before, w.Live().Registry())
	assert.Equal(t, 1, m.polls)
	assert.Equal(t, 1, m.swaps)
}

func TestWatcher_SwapsOnChange(t *testing.T) {
	src := &fakeSource{doc: withRateLimit}
	var swapped []*Snapshot
	w := newTestWatcher(src, &fakeWatcherMetrics{}, func(o *WatcherOptions) {
		o.OnSwap = func(s *Snapshot) { swapped = append(swapped, s) }
	})
	require.NoError(t, w.Load(context.Background()))
	t.Cleanup(w.Live().Close)
	first, _ := w.Live().Get()

	src.set(withoutRateLimit, nil)
	assert.Equal(t, pollSwapped, w.checkOnce(context.Background()))

	reg := w.Live().Registry()
	assert.False(t, hasChain(reg, ratelimit.LimitedChain))
	assert.Equal(t, hashDoc([]byte(withoutRateLimit)), w.Live().Hash())
	require.Len(t, swapped, 2)
	assert.Same(t, reg, swapped[1].Registry)
	assert.NotSame(t, first.Registry, reg)

}

func TestWatcher_BadDocumentKeepsGraph(t *testing.T) {
	src := &fakeSource{doc: withRateLimit}
	m := &fakeWatcherMetrics{}
	w := newTestWatcher(src, m)
	require.NoError(t, w.Load(context.Background()))
	t.Cleanup(w.Live().Close)
	before := w.Live().Registry()

	src.set("modules = [", nil)
	assert.Equal(t, pollParseError, w.checkOnce(context.Background()))
	assert.Same(t, before, w.Live().Registry())

	src.set(`modules = ["gzip"]`, nil)
	assert.Equal(t, pollBuildError, w.checkOnce(context.Background()))
	assert.Same(t, before, w.Live().Registry())

	src.set(`
[[routes]]
name = "bad"
path = "/x"
when = "meta["
body = "x"
`, nil)
	assert.Equal(t, pollBuildError, w.checkOnce(context.Background()))
	assert.Same(t, before, w.Live().Registry())

	assert.Equal(t, []string{"parse", "build", "build"}, m.errs)
	assert.Equal(t, 1, m.swaps)
}

func TestWatcher_FetchErrorBacksOff(t *testing.T) {
	src := &fakeSource{doc: withRateLimit}
	m := &fakeWatcherMetrics{}
	w := newTestWatcher(src, m, func(o *WatcherOptions) {
		o.PollInterval = time.Second
	})
	require.NoError(t, w.Load(context.Background()))
	t.Cleanup(w.Live().Close)

	src.set("", errors.New("throttled"))
	assert.Equal(t, pollFetchError, w.checkOnce(context.Background()))
	assert.Equal(t, []string{"fetch"}, m.errs)

	w.consecutiveErrs = 1
	assert.Equal(t, 2*time.Second, w.backoffDuration())
	w.consecutiveErrs = 3
	assert.Equal(t, 8*time.Second, w.backoffDuration())
	w.consecutiveErrs = 20
	assert.Equal(t, maxBackoff, w.backoffDuration())
}

func TestWatcher_Staleness(t *testing.T) {
	src := &fakeSource{doc: withRateLimit}
	m := &fakeWatcherMetrics{}
	w := newTestWatcher(src, m, func(o *WatcherOptions) {
		o.StaleThreshold = time.Minute
	})

	w.lastSuccessAt = time.Now().Add(-2 * time.Minute)
	w.trackStaleness(context.Background(), pollFetchError)
	assert.True(t, m.stale)
	assert.True(t, w.staleLogged)

	w.trackStaleness(context.Background(), pollNoChange)
	assert.False(t, m.stale)
	assert.False(t, w.staleLogged)
}

func TestWatcher_OnSwapPanicRecovered(t *testing.T) {
	src := &fakeSource{doc: withRateLimit}
	w := newTestWatcher(src, nil, func(o *WatcherOptions) {
		o.OnSwap = func(*Snapshot) { panic("boom") }
	})
	require.NotPanics(t, func() {
		require.NoError(t, w.Load(context.Background()))
	})
	t.Cleanup(w.Live().Close)
	assert.NotNil(t, w.Live().Registry())
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	src := &fakeSource{doc: withRateLimit}
	w := newTestWatcher(src, nil, func(o *WatcherOptions) {
		o.PollInterval = 10 * time.Millisecond
	})
	require.NoError(t, w.Load(context.Background()))
	t.Cleanup(w.Live().Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.reads >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLive_ServeHTTP(t *testing.T) {
	live := NewLive()
	rec := serveLive(live, "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	w := newTestWatcher(&fakeSource{doc: withRateLimit}, nil, func(o *WatcherOptions) { o.Live = live })
	require.NoError(t, w.Load(context.Background()))
	t.Cleanup(live.Close)

	rec = serveLive(live, "/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func serveLive(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return rec
}

func TestLive_SetStopsPrevious(t *testing.T) {
	live := NewLive()
	var stops []string
	live.Set(Snapshot{Registry: &chain.Registry{}, Hash: "a", stop: func() { stops = append(stops, "a") }})
	live.Set(Snapshot{Registry: &chain.Registry{}, Hash: "b", stop: func() { stops = append(stops, "b") }})

	assert.Equal(t, []string{"a"}, stops)
	assert.Equal(t, "b", live.Hash())

	live.Close()
	assert.Equal(t, []string{"a", "b"}, stops)
}
