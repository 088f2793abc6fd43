// Package celrule compiles CEL expressions into chain matchers.
//
// Expressions see the request metadata as a single map variable named meta,
// keyed by metadata key name, with extension data nested under meta.ext:
//
//	meta["http.method"] == "GET" && meta["http.path"].startsWith("/api/")
//	has(meta.ext.tenant) && meta.ext.tenant == "acme"
//
// An expression that fails at evaluation time (missing key, wrong type)
// does not match.
package celrule

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

const metaVar = "meta"

// Env compiles and caches CEL programs. It is safe for concurrent use.
type Env struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func New() (*Env, error) {
	env, err := cel.NewEnv(
		cel.Variable(metaVar, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("celrule: create environment: %w", err)
	}
	return &Env{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile type checks expr and returns a matcher evaluating it. Programs are
// cached per expression.
func (e *Env) Compile(expr string) (chain.Matcher, error) {
	prg, err := e.program(expr)
	if err != nil {
		return nil, err
	}
	return func(md *metadata.MetaData) bool {
		ok, err := eval(prg, md)
		return err == nil && ok
	}, nil
}

// Eval evaluates expr once against md, reporting evaluation errors.
func (e *Env) Eval(expr string, md *metadata.MetaData) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	return eval(prg, md)
}

func (e *Env) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("celrule: compile %q: %w", expr, iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("celrule: %q evaluates to %v, want bool", expr, out)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("celrule: program %q: %w", expr, err)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

func eval(prg cel.Program, md *metadata.MetaData) (bool, error) {
	out, _, err := prg.Eval(map[string]any{metaVar: md.Snapshot()})
	if err != nil {
		return false, fmt.Errorf("celrule: evaluate: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("celrule: result %v is not a bool", out.Value())
	}
	return b, nil
}
