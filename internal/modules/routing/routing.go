// Package routing maps requests to use-case chains.
//
// Every route becomes its own chain, route.<name>, running the route's
// handler and then jumping to http.respond. A rule on http.routing selects
// the chain; routes are tried in the order they were added, so the first
// matching route wins.
//
// Routes are declared through the Routes configurator, which pulls in the
// Module as a default dependency and hands it the routes during the
// configure phase.
package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/httpchain"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

var (
	ErrDuplicateRoute = errors.New("routing: duplicate route name")
	ErrSealed         = errors.New("routing: routes are sealed after register")
)

// ChainPrefix prefixes every route chain name.
const ChainPrefix = "route."

// Route binds a request pattern to a handler.
type Route struct {
	Name string
	// Method matches exactly; empty matches any method.
	Method string
	// Path matches exactly, or as a prefix when it ends in "/*". Empty
	// matches any path.
	Path string
	// When adds a condition on top of method and path.
	When chain.Matcher
	// WhenDescription labels When in diagnostics.
	WhenDescription string
	Handler         chain.Processor
}

// ChainName is the chain created for r.
func (r Route) ChainName() chain.Name { return chain.Name(ChainPrefix + r.Name) }

func (r Route) matcher() chain.Matcher {
	var ms []chain.Matcher
	if r.Method != "" {
		ms = append(ms, chain.IfEquals(httpchain.MethodKey, r.Method))
	}
	if r.Path != "" {
		ms = append(ms, pathMatcher(r.Path))
	}
	if r.When != nil {
		ms = append(ms, r.When)
	}
	return chain.All(ms...)
}

func (r Route) describe() string {
	method, path := r.Method, r.Path
	if method == "" {
		method = "*"
	}
	if path == "" {
		path = "/*"
	}
	d := method + " " + path
	if r.When != nil {
		w := r.WhenDescription
		if w == "" {
			w = "condition"
		}
		d += " if " + w
	}
	return d
}

func pathMatcher(pattern string) chain.Matcher {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return func(md *metadata.MetaData) bool {
			p, _ := metadata.Lookup(md, httpchain.PathKey)
			return p == prefix || strings.HasPrefix(p, prefix+"/")
		}
	}
	return chain.IfEquals(httpchain.PathKey, pattern)
}

// Module owns the route chains. It accepts routes until it registers.
type Module struct {
	routes []Route
	names  map[string]bool
	sealed bool
}

func New() *Module {
	return &Module{names: make(map[string]bool)}
}

// Add queues a route.
func (m *Module) Add(r Route) error {
	switch {
	case m.sealed:
		return ErrSealed
	case r.Name == "":
		return fmt.Errorf("routing: route %s %s has no name", r.Method, r.Path)
	case r.Handler == nil:
		return fmt.Errorf("routing: route %q has no handler", r.Name)
	case m.names[r.Name]:
		return fmt.Errorf("%w: %q", ErrDuplicateRoute, r.Name)
	}
	m.names[r.Name] = true
	m.routes = append(m.routes, r)
	return nil
}

// Routes returns the queued routes in priority order.
func (m *Module) Routes() []Route {
	out := make([]Route, len(m.routes))
	copy(out, m.routes)
	return out
}

func (m *Module) Register(ext *chain.Extender) error {
	m.sealed = true
	for _, r := range m.routes {
		name := r.ChainName()
		if err := ext.CreateChain(name,
			chain.Jump{Target: httpchain.RespondChain},
			chain.Jump{Target: httpchain.ExceptionChain},
		); err != nil {
			return err
		}
		if err := ext.AppendProcessor(name, r.Handler); err != nil {
			return err
		}
		if err := ext.Route(httpchain.RoutingChain, chain.Jump{Target: name}, r.matcher(), r.describe()); err != nil {
			return err
		}
	}
	return nil
}
