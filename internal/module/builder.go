package module

import (
	"context"
	"fmt"
	"time"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

// Builder collects modules and configurators and produces a chain.Registry.
type Builder struct {
	modules       []Module
	configurators []Configurator
	chainOpts     []chain.Option
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) AddModule(ms ...Module) *Builder {
	b.modules = append(b.modules, ms...)
	return b
}

func (b *Builder) AddConfigurator(cs ...Configurator) *Builder {
	b.configurators = append(b.configurators, cs...)
	return b
}

// WithChainOptions passes options through to chain.Builder.Build.
func (b *Builder) WithChainOptions(opts ...chain.Option) *Builder {
	b.chainOpts = append(b.chainOpts, opts...)
	return b
}

// Build resolves dependencies and runs init, configure and register in that
// order. Any error aborts the build.
func (b *Builder) Build(ctx context.Context) (*chain.Registry, error) {
	L := log.FromContext(ctx)
	start := time.Now()

	for _, c := range b.configurators {
		if c == nil {
			return nil, fmt.Errorf("%w: configurator", ErrNilModule)
		}
	}

	md := metadata.New()
	deps, err := Load(b.modules, md)
	if err != nil {
		return nil, err
	}

	var resolve func(ms []Module) error
	resolve = func(ms []Module) error {
		for _, m := range ms {
			if m == nil {
				return ErrNilModule
			}
			if deps.Contains(m) {
				continue
			}
			L.Debug(ctx, "adding default dependency", "module", ID(m))
			if err := resolve(deps.AddIfAbsent(m)); err != nil {
				return err
			}
		}
		return nil
	}
	for _, c := range b.configurators {
		if s, ok := c.(DependencySupplier); ok {
			if err := resolve(s.SupplyModulesIfNotAlreadyPresent()); err != nil {
				return nil, err
			}
		}
	}
	for _, m := range deps.Modules() {
		if s, ok := m.(DependencySupplier); ok {
			if err := resolve(s.SupplyModulesIfNotAlreadyPresent()); err != nil {
				return nil, err
			}
		}
	}
	modules := deps.Modules()
	L.Debug(ctx, "module dependencies resolved", "modules", len(modules), "configurators", len(b.configurators))

	for _, m := range modules {
		if i, ok := m.(Initializer); ok {
			if err := i.Init(md); err != nil {
				return nil, fmt.Errorf("module: init %s: %w", ID(m), err)
			}
		}
	}
	for _, c := range b.configurators {
		if i, ok := c.(Initializer); ok {
			if err := i.Init(md); err != nil {
				return nil, fmt.Errorf("module: init configurator %s: %w", ID(c), err)
			}
		}
	}
	L.Debug(ctx, "module init phase complete")

	for _, c := range b.configurators {
		if err := c.Configure(deps); err != nil {
			return nil, fmt.Errorf("module: configure %s: %w", ID(c), err)
		}
	}
	for _, m := range modules {
		if c, ok := m.(Configurator); ok {
			if err := c.Configure(deps); err != nil {
				return nil, fmt.Errorf("module: configure %s: %w", ID(m), err)
			}
		}
	}
	L.Debug(ctx, "module configure phase complete")

	reg, err := deps.BuildChainRegistry(b.chainOpts...)
	if err != nil {
		return nil, err
	}
	L.Debug(ctx, "chain registry built",
		"chains", len(reg.Names()),
		"duration", time.Since(start),
	)
	return reg, nil
}
