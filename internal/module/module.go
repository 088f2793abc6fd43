package module

import (
	"reflect"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

// Module contributes chains, processors and rules.
type Module interface {
	Register(ext *chain.Extender) error
}

// Configurator adjusts modules before they register.
type Configurator interface {
	Configure(deps *Dependencies) error
}

// ConfiguratorFunc adapts a function to Configurator.
type ConfiguratorFunc func(deps *Dependencies) error

func (f ConfiguratorFunc) Configure(deps *Dependencies) error { return f(deps) }

// DependencySupplier declares modules that should be present unless the
// caller already added one of the same type.
type DependencySupplier interface {
	SupplyModulesIfNotAlreadyPresent() []Module
}

// Initializer seeds build metadata before any configurator runs.
type Initializer interface {
	Init(md *metadata.MetaData) error
}

// ID is the identity chain mutations are attributed to.
func ID(v any) chain.ModuleID {
	return chain.ModuleID(typeOf(v).String())
}

func typeOf(v any) reflect.Type { return reflect.TypeOf(v) }
