package pipeline

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/httpchain"
)

var ErrNoGraph = errors.New("no chain graph loaded")

// Snapshot is one built graph and where it came from.
type Snapshot struct {
	Registry *chain.Registry
	// Hash is the SHA-256 of the features document the graph was built from
	Hash     string
	Source   string
	LoadedAt time.Time

	// stop ends goroutines owned by the graph's modules, e.g. limiter cleanup
	stop context.CancelFunc
}

// Live holds the graph currently serving requests. A registry is frozen once
// built, so a features change swaps in a whole new one and requests already
// running finish on the graph they started with.
type Live struct {
	active atomic.Pointer[Snapshot]
}

func NewLive() *Live { return &Live{} }

// Set swaps s in and stops the previous graph's background work.
func (l *Live) Set(s Snapshot) {
	cp := new(Snapshot)
	*cp = s
	if cp.LoadedAt.IsZero() {
		cp.LoadedAt = time.Now().UTC()
	}
	if prev := l.active.Swap(cp); prev != nil && prev.stop != nil {
		prev.stop()
	}
}

// Get retrieves the active snapshot.
func (l *Live) Get() (*Snapshot, bool) {
	s := l.active.Load()
	return s, s != nil && s.Registry != nil
}

// Registry returns the active registry or nil. It has the shape opshttp
// expects for /-/chains.
func (l *Live) Registry() *chain.Registry {
	if s, ok := l.Get(); ok {
		return s.Registry
	}
	return nil
}

func (l *Live) Hash() string {
	if s, ok := l.Get(); ok {
		return s.Hash
	}
	return ""
}

// ReadyErr reports whether a graph can serve traffic.
func (l *Live) ReadyErr() error {
	if _, ok := l.Get(); !ok {
		return ErrNoGraph
	}
	return nil
}

// Close stops the active graph's background work.
func (l *Live) Close() {
	if s := l.active.Load(); s != nil && s.stop != nil {
		s.stop()
	}
}

// ServeHTTP runs the request through whichever graph is active when it
// arrives.
func (l *Live) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reg := l.Registry()
	if reg == nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"service unavailable"}`))
		return
	}
	httpchain.NewHandler(reg, "").ServeHTTP(w, r)
}
