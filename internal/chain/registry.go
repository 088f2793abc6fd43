package chain

import (
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/reqchain/internal/metadata"
)

const (
	DefaultMaxHops = 256
	tracerName     = "github.com/keithlinneman/reqchain/internal/chain"
)

func defaultTracer() trace.Tracer { return otel.Tracer(tracerName) }

// Option configures the Registry produced by Builder.Build.
type Option func(*Registry)

// WithMaxHops bounds the number of chains one run may enter. Values below 1
// are ignored.
func WithMaxHops(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxHops = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// Registry is the frozen graph. All methods are safe for concurrent use.
type Registry struct {
	chains   map[Name]*Chain
	order    []Name
	md       *metadata.MetaData
	maxHops  int
	observer Observer
	tracer   trace.Tracer
}

// Chain returns the named chain.
func (r *Registry) Chain(name Name) (*Chain, bool) {
	c, ok := r.chains[name]
	return c, ok
}

// Chains returns every chain in creation order.
func (r *Registry) Chains() []*Chain {
	out := make([]*Chain, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.chains[n])
	}
	return out
}

// Names returns chain names in creation order.
func (r *Registry) Names() []Name { return slices.Clone(r.order) }

func (r *Registry) MaxHops() int { return r.maxHops }

// BuildDatum reads a value the modules left in the build metadata.
func BuildDatum[T any](r *Registry, k metadata.Key[T]) (T, bool) {
	return metadata.Lookup(r.md, k)
}
