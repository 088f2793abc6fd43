// Package module assembles a chain.Registry from independently written
// modules.
//
// A Module extends the graph in Register. It may declare default
// dependencies (DependencySupplier), seed build metadata (Initializer) and
// take part in cross-module wiring (Configurator). A Configurator is the user
// facing counterpart: it only configures, usually by looking up a module with
// Get and adjusting it.
//
// Builder.Build runs the phases in a fixed order: dependency closure, init
// (modules then configurators), configure (configurators then modules), and
// finally register. Modules are deduplicated by concrete type.
package module
