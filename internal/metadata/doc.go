// Package metadata provides the typed key/value store that carries all state
// through one request (or one build) of the chain engine.
//
// Values are addressed by a [Key], whose type parameter fixes the type of the
// stored value. Because Go methods cannot be generic, the checked API is a set
// of package functions ([Set], [Get], [Lookup], [GetOrSetDefault], [GetAs],
// [LookupAs]) operating on a *[MetaData].
//
// Data whose type is not known to the writer (decoded request extensions and
// the like) goes through [MetaData.SetUnchecked] into a separate extension
// map, so the unchecked path never mixes with checked values. Reads of
// extension data go through [MetaData.Extension] or are asserted at read time
// with [GetAs].
//
// A MetaData is not safe for concurrent use. One instance belongs to exactly
// one request or build.
package metadata
