package module

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

var (
	ErrMissingDependency = errors.New("module: missing dependency")
	ErrNilModule         = errors.New("module: nil module")
)

// Dependencies is the build-time index of modules, keyed by concrete type.
// Modules are never removed once added.
type Dependencies struct {
	md     *metadata.MetaData
	byType map[reflect.Type]Module
	order  []Module
}

// Load indexes modules in order. A later module of an already present type
// is skipped.
func Load(modules []Module, md *metadata.MetaData) (*Dependencies, error) {
	if md == nil {
		md = metadata.New()
	}
	d := &Dependencies{md: md, byType: make(map[reflect.Type]Module)}
	for _, m := range modules {
		if m == nil {
			return nil, ErrNilModule
		}
		d.AddIfAbsent(m)
	}
	return d, nil
}

// AddIfAbsent adds m unless a module of the same type is present. It returns
// the default dependencies m declares, which the caller resolves in turn. An
// already present type yields no follow-ups.
func (d *Dependencies) AddIfAbsent(m Module) []Module {
	t := typeOf(m)
	if _, ok := d.byType[t]; ok {
		return nil
	}
	d.byType[t] = m
	d.order = append(d.order, m)
	if s, ok := m.(DependencySupplier); ok {
		return s.SupplyModulesIfNotAlreadyPresent()
	}
	return nil
}

// Contains reports whether a module of m's type is registered.
func (d *Dependencies) Contains(m Module) bool {
	_, ok := d.byType[typeOf(m)]
	return ok
}

// Modules returns the registered modules in registration order.
func (d *Dependencies) Modules() []Module {
	out := make([]Module, len(d.order))
	copy(out, d.order)
	return out
}

// MetaData is the shared build metadata.
func (d *Dependencies) MetaData() *metadata.MetaData { return d.md }

// Get returns the module of type T. T is either a concrete module type, or an
// interface, in which case the first registered module implementing it is
// returned.
func Get[T any](d *Dependencies) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()
	if m, ok := d.byType[t]; ok {
		return m.(T), nil
	}
	if t.Kind() == reflect.Interface {
		for _, m := range d.order {
			if v, ok := m.(T); ok {
				return v, nil
			}
		}
	}
	return zero, fmt.Errorf("%w: %v (add it or declare it via SupplyModulesIfNotAlreadyPresent)", ErrMissingDependency, t)
}

// BuildChainRegistry calls Register on every module in registration order and
// freezes the result.
func (d *Dependencies) BuildChainRegistry(opts ...chain.Option) (*chain.Registry, error) {
	b := chain.NewBuilder(d.md)
	for _, m := range d.order {
		id := ID(m)
		if err := m.Register(b.Extender(id)); err != nil {
			return nil, fmt.Errorf("module: register %s: %w", id, err)
		}
	}
	return b.Build(opts...)
}
