package chain

import (
	"github.com/keithlinneman/reqchain/internal/metadata"
)

// Matcher is a rule predicate. Matchers must not mutate md.
type Matcher func(md *metadata.MetaData) bool

// Rule is a guarded transition out of a chain.
type Rule struct {
	Module      ModuleID
	Matcher     Matcher
	Action      Action
	Description string
}

// IfEquals matches when k holds want.
func IfEquals[T comparable](k metadata.Key[T], want T) Matcher {
	return func(md *metadata.MetaData) bool {
		v, ok := metadata.Lookup(md, k)
		return ok && v == want
	}
}

// IfFlagIsSet matches when k holds true.
func IfFlagIsSet(k metadata.Key[bool]) Matcher {
	return IfEquals(k, true)
}

// IfSet matches when any value is stored under k.
func IfSet(k metadata.Named) Matcher {
	return func(md *metadata.MetaData) bool { return md.Contains(k) }
}

func Not(m Matcher) Matcher {
	return func(md *metadata.MetaData) bool { return !m(md) }
}

// All matches when every m matches. All() matches everything.
func All(ms ...Matcher) Matcher {
	return func(md *metadata.MetaData) bool {
		for _, m := range ms {
			if !m(md) {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one m matches.
func Any(ms ...Matcher) Matcher {
	return func(md *metadata.MetaData) bool {
		for _, m := range ms {
			if m(md) {
				return true
			}
		}
		return false
	}
}

func Always() Matcher { return func(*metadata.MetaData) bool { return true } }
