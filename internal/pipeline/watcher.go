package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/keithlinneman/reqchain/internal/cfg"
	"github.com/keithlinneman/reqchain/internal/log"
)

const (
	// DefaultPollInterval is how often the watcher re-reads the features source.
	DefaultPollInterval = 30 * time.Second

	// maxBackoff caps exponential backoff on consecutive fetch errors.
	maxBackoff = 5 * time.Minute
)

// pollResult describes what happened during a single poll cycle.
type pollResult int

const (
	pollNoChange   pollResult = iota // document hash matches the active graph
	pollSwapped                      // new document parsed, built and swapped in
	pollFetchError                   // source read failed, caller should back off
	pollParseError                   // document changed but does not decode or validate
	pollBuildError                   // features valid but the graph failed to build
)

// WatcherMetrics is implemented by the metrics package.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(stage string)
	ObserveGraphBuildDuration(seconds float64)
	SetWatcherLastSuccess(unixSeconds float64)
	SetWatcherStale(stale bool)
}

type WatcherOptions struct {
	Logger       log.Logger
	Source       cfg.FeatureSource
	Live         *Live
	PollInterval time.Duration

	// Build configures every graph the watcher builds. Its Logger defaults
	// to the watcher's.
	Build Options

	// OnSwap is called synchronously on the poll goroutine after a swap.
	OnSwap func(s *Snapshot)

	Metrics WatcherMetrics

	// StaleThreshold is how long since the last successful read before the
	// watcher reports staleness. Zero defaults to 30 minutes.
	StaleThreshold time.Duration
}

// Watcher polls a features source and rebuilds the graph when the document
// changes. A document that fails to parse or build never replaces a working
// graph.
type Watcher struct {
	source         cfg.FeatureSource
	live           *Live
	logger         log.Logger
	interval       time.Duration
	build          Options
	onSwap         func(s *Snapshot)
	metrics        WatcherMetrics
	staleThreshold time.Duration

	currentHash string

	consecutiveErrs int
	lastSuccessAt   time.Time
	staleLogged     bool

	pollCount int64
	swapCount int64
}

func NewWatcher(opts *WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	staleThreshold := opts.StaleThreshold
	if staleThreshold <= 0 {
		staleThreshold = 30 * time.Minute
	}
	build := opts.Build
	if build.Logger == nil {
		build.Logger = opts.Logger
	}
	live := opts.Live
	if live == nil {
		live = NewLive()
	}

	return &Watcher{
		source:         opts.Source,
		live:           live,
		logger:         opts.Logger,
		interval:       interval,
		build:          build,
		onSwap:         opts.OnSwap,
		metrics:        opts.Metrics,
		currentHash:    live.Hash(),
		staleThreshold: staleThreshold,
		lastSuccessAt:  time.Now(),
	}
}

// Live returns the holder the watcher swaps graphs into.
func (w *Watcher) Live() *Live { return w.live }

// Load builds the first graph. Unlike a poll it returns the failure, since
// there is no previous graph to keep serving.
func (w *Watcher) Load(ctx context.Context) error {
	doc, err := w.source.FeaturesDoc(ctx)
	if err != nil {
		return err
	}
	w.markSuccess()
	return w.apply(ctx, doc, hashDoc(doc))
}

// Run starts the poll loop. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "features watcher starting",
		"source", w.source.String(),
		"poll_interval", w.interval.String(),
		"current_hash", truncHash(w.currentHash),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "features watcher stopping",
				"reason", ctx.Err(),
				"polls", w.pollCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()
		case <-ticker.C:
			result := w.checkOnce(ctx)

			if result == pollFetchError {
				w.consecutiveErrs++
				backoff := w.backoffDuration()
				w.logger.Warn(ctx, "features watcher: backing off",
					"consecutive_errors", w.consecutiveErrs,
					"next_poll_in", backoff.String(),
				)
				ticker.Reset(backoff)
			} else if w.consecutiveErrs > 0 {
				w.logger.Info(ctx, "features watcher: recovered, resuming normal interval",
					"had_consecutive_errors", w.consecutiveErrs,
				)
				w.consecutiveErrs = 0
				ticker.Reset(w.interval)
			}

			w.trackStaleness(ctx, result)
		}
	}
}

// trackStaleness reports once on the transition into and out of staleness.
func (w *Watcher) trackStaleness(ctx context.Context, result pollResult) {
	if result != pollFetchError {
		if w.staleLogged {
			w.logger.Info(ctx, "features watcher: staleness recovered")
			w.staleLogged = false
			if w.metrics != nil {
				w.metrics.SetWatcherStale(false)
			}
		}
		return
	}
	if time.Since(w.lastSuccessAt) > w.staleThreshold && !w.staleLogged {
		w.logger.Error(ctx, fmt.Errorf("last successful read was %s ago", time.Since(w.lastSuccessAt).Truncate(time.Second)),
			"features watcher: features are stale, unable to verify the active graph is current",
			"source", w.source.String(),
		)
		w.staleLogged = true
		if w.metrics != nil {
			w.metrics.SetWatcherStale(true)
		}
	}
}

// checkOnce performs a single poll-compare-swap cycle.
func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.pollCount++
	if w.metrics != nil {
		w.metrics.IncWatcherPolls()
	}

	doc, err := w.source.FeaturesDoc(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "features watcher: read failed", "source", w.source.String())
		if w.metrics != nil {
			w.metrics.IncWatcherError("fetch")
		}
		return pollFetchError
	}
	w.markSuccess()

	hash := hashDoc(doc)
	if hash == w.currentHash {
		return pollNoChange
	}

	w.logger.Info(ctx, "features watcher: new features detected",
		"old_hash", truncHash(w.currentHash),
		"new_hash", truncHash(hash),
	)
	if err := w.apply(ctx, doc, hash); err != nil {
		stage, result := "build", pollBuildError
		var pe parseError
		if errors.As(err, &pe) {
			stage, result = "parse", pollParseError
		}
		w.logger.Error(ctx, err, "features watcher: keeping current graph",
			"rejected_hash", truncHash(hash),
			"current_hash", truncHash(w.currentHash),
		)
		if w.metrics != nil {
			w.metrics.IncWatcherError(stage)
		}
		return result
	}
	return pollSwapped
}

type parseError struct{ error }

func (e parseError) Unwrap() error { return e.error }

// apply parses doc, builds a graph from it and swaps it in.
func (w *Watcher) apply(ctx context.Context, doc []byte, hash string) error {
	start := time.Now()
	features, err := cfg.ParseFeatures(doc)
	if err != nil {
		return parseError{err}
	}

	// modules may start goroutines bound to the build context, they stop
	// when this graph is swapped out
	buildCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	reg, err := Build(buildCtx, features, w.build)
	if w.metrics != nil {
		w.metrics.ObserveGraphBuildDuration(time.Since(start).Seconds())
	}
	if err != nil {
		stop()
		return err
	}

	oldHash := w.currentHash
	w.live.Set(Snapshot{
		Registry: reg,
		Hash:     hash,
		Source:   w.source.String(),
		stop:     stop,
	})
	w.currentHash = hash
	w.swapCount++
	if w.metrics != nil {
		w.metrics.IncWatcherSwaps()
	}

	w.logger.Info(ctx, "features watcher: graph swapped",
		"old_hash", truncHash(oldHash),
		"new_hash", truncHash(hash),
		"chains", len(reg.Names()),
		"modules", features.Modules,
		"total_swaps", w.swapCount,
	)

	if w.onSwap != nil {
		snap, _ := w.live.Get()
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(ctx, fmt.Errorf("OnSwap panic: %v", r),
						"features watcher: OnSwap callback panicked, continuing",
						"hash", truncHash(hash),
					)
				}
			}()
			w.onSwap(snap)
		}()
	}
	return nil
}

func (w *Watcher) markSuccess() {
	now := time.Now()
	w.lastSuccessAt = now
	if w.metrics != nil {
		w.metrics.SetWatcherLastSuccess(float64(now.Unix()))
	}
}

// backoffDuration computes exponential backoff capped at maxBackoff.
// consecutiveErrs=1 → 2x interval, =2 → 4x, =3 → 8x, etc.
func (w *Watcher) backoffDuration() time.Duration {
	mult := math.Pow(2, float64(w.consecutiveErrs))
	d := time.Duration(float64(w.interval) * mult)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func hashDoc(doc []byte) string {
	h := sha256.Sum256(doc)
	return hex.EncodeToString(h[:])
}

// truncHash returns the first 12 characters of a hash for logging.
func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
