// Package chain is the request processing engine.
//
// A chain is a named state holding an ordered list of processors, an ordered
// list of rules, a default action and an exception action. Entering a chain
// runs every processor in order, then evaluates rules in insertion order; the
// first matching rule's action is taken, or the default action when nothing
// matches. Jump moves to another chain, Consume ends the run successfully and
// Drop ends it silently. A processor error or panic skips the rest of the
// chain and takes the exception action, with the error recorded in the
// request metadata under ErrorKey.
//
// Chains are assembled through a Builder, one Extender per owning module, and
// frozen by Builder.Build into a Registry. A Registry never changes and may be
// run from any number of goroutines, each with its own MetaData.
package chain
