// Package httpmw holds the net/http middleware that runs before a request
// reaches the chain graph.
//
// The middleware resolves what the graph needs from the transport: a request
// ID, the client address behind any trusted proxies, the trace context and a
// request-scoped logger. Behavior that varies per deployment (headers, rate
// limits, routing) belongs in chain modules, not here.
//
// Client supplied values such as the query string, Host and User-Agent are
// put on spans only, never in log records.
package httpmw
