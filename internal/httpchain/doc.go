// Package httpchain adapts net/http to the chain engine.
//
// NewRequest is the ingestion side: it seeds a request's metadata with the
// method, path, headers, client address and request id. Handler is the
// output side: it runs the registry from an entry chain and writes whatever
// status, headers and body the processors left behind when the run is
// consumed. A dropped run writes nothing.
//
// The well-known chain names below form the contract between the core HTTP
// module, which creates them, and every feature module that extends them.
package httpchain
