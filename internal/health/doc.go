// Package health holds the liveness and readiness probes served on the
// public and ops listeners.
//
// A [Probe] returns nil when healthy or an error carrying the reason. Probes
// compose with [All] and [Any], and [Named] prefixes a reason with the
// component it came from. A [Gate] fails readiness on demand, which main uses
// to take the listener out of rotation before it drains.
package health
