// Package ratelimit is the per-client rate limiting module.
//
// A processor prepended to http.entry takes a token from the client's bucket
// and flags the request when none is left; a rule on http.entry then jumps
// to ratelimit.limited, which answers 429 through http.respond.
//
// Buckets live in process memory and are not shared between instances. This
// guards against a single client exhausting one instance, not against
// distributed floods or bandwidth abuse.
package ratelimit
