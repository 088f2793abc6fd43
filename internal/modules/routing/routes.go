package routing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/keithlinneman/reqchain/internal/celrule"
	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/httpchain"
	"github.com/keithlinneman/reqchain/internal/metadata"
	"github.com/keithlinneman/reqchain/internal/module"
)

// StaticRoute answers with a fixed JSON body. Expr is an optional CEL
// condition evaluated against the request metadata.
type StaticRoute struct {
	Name    string
	Method  string
	Path    string
	Expr    string
	Status  int
	Body    any
	Headers map[string]string
}

// Routes is the user facing configurator for declaring routes. Routes keep
// their declaration order, static or not.
type Routes struct {
	pending []func() (Route, error)
	cel     *celrule.Env
}

func NewRoutes() *Routes { return &Routes{} }

// WithCEL shares a compiled program cache with other users of env.
func (rs *Routes) WithCEL(env *celrule.Env) *Routes {
	rs.cel = env
	return rs
}

// Handle adds a route named after its method and path.
func (rs *Routes) Handle(method, path string, h chain.Processor) *Routes {
	return rs.Add(Route{Name: method + " " + path, Method: method, Path: path, Handler: h})
}

func (rs *Routes) HandleFunc(method, path string, f func(ctx context.Context, md *metadata.MetaData) error) *Routes {
	return rs.Handle(method, path, chain.Named(method+" "+path, chain.ProcessorFunc(f)))
}

func (rs *Routes) Add(r Route) *Routes {
	rs.pending = append(rs.pending, func() (Route, error) { return r, nil })
	return rs
}

func (rs *Routes) Static(s StaticRoute) *Routes {
	rs.pending = append(rs.pending, func() (Route, error) { return rs.staticRoute(s) })
	return rs
}

func (rs *Routes) SupplyModulesIfNotAlreadyPresent() []module.Module {
	return []module.Module{New()}
}

// Configure hands every route to the routing module. CEL conditions are
// compiled here so a bad expression fails the build.
func (rs *Routes) Configure(deps *module.Dependencies) error {
	m, err := module.Get[*Module](deps)
	if err != nil {
		return err
	}
	for _, next := range rs.pending {
		r, err := next()
		if err != nil {
			return err
		}
		if err := m.Add(r); err != nil {
			return err
		}
	}
	return nil
}

func (rs *Routes) staticRoute(s StaticRoute) (Route, error) {
	r := Route{Name: s.Name, Method: s.Method, Path: s.Path}
	if s.Expr != "" {
		if rs.cel == nil {
			env, err := celrule.New()
			if err != nil {
				return Route{}, err
			}
			rs.cel = env
		}
		when, err := rs.cel.Compile(s.Expr)
		if err != nil {
			return Route{}, fmt.Errorf("routing: route %q: %w", s.Name, err)
		}
		r.When, r.WhenDescription = when, s.Expr
	}

	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}
	body, headers := s.Body, s.Headers
	r.Handler = chain.NamedFunc("static "+s.Name, func(_ context.Context, md *metadata.MetaData) error {
		hdr := httpchain.ResponseHeaders(md)
		for k, v := range headers {
			hdr.Set(k, v)
		}
		httpchain.Respond(md, status, body)
		return nil
	})
	return r, nil
}
