package module

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

var (
	ErrUnknownModule   = errors.New("module: unknown module name")
	ErrDuplicateModule = errors.New("module: module name already registered")
)

// Factory returns a fresh module instance.
type Factory func() Module

// Catalog is the compile-time list of optional modules, enabled by name from
// configuration.
type Catalog struct {
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

func (c *Catalog) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("module: catalog entry %q needs a name and a factory", name)
	}
	if _, ok := c.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}
	c.factories[name] = f
	return nil
}

// MustRegister is Register for package level catalog setup.
func (c *Catalog) MustRegister(name string, f Factory) *Catalog {
	if err := c.Register(name, f); err != nil {
		panic(err)
	}
	return c
}

// Select instantiates the named modules in the given order. All unknown
// names are reported together.
func (c *Catalog) Select(names []string) ([]Module, error) {
	var (
		out  []Module
		errs []error
	)
	for _, n := range names {
		f, ok := c.factories[n]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q (known: %v)", ErrUnknownModule, n, c.Names()))
			continue
		}
		out = append(out, f())
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Names returns the registered names, sorted.
func (c *Catalog) Names() []string {
	return slices.Sorted(maps.Keys(c.factories))
}
