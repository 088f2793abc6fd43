package chain

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/keithlinneman/reqchain/internal/metadata"
)

// Builder holds the graph while modules are still extending it. It is not
// safe for concurrent use; the build runs on one goroutine.
type Builder struct {
	md     *metadata.MetaData
	chains map[Name]*Chain
	order  []Name
	frozen bool
}

// NewBuilder starts an empty graph bound to the shared build metadata.
func NewBuilder(md *metadata.MetaData) *Builder {
	if md == nil {
		md = metadata.New()
	}
	return &Builder{md: md, chains: make(map[Name]*Chain)}
}

// MetaData returns the shared build metadata.
func (b *Builder) MetaData() *metadata.MetaData { return b.md }

// Extender returns a view of the builder whose mutations are attributed to
// owner.
func (b *Builder) Extender(owner ModuleID) *Extender {
	return &Extender{b: b, owner: owner}
}

// Build validates the graph and freezes it. Every Jump target must name an
// existing chain, and no cycle may be reachable through default jumps alone
// among chains without rules. All problems are reported together.
func (b *Builder) Build(opts ...Option) (*Registry, error) {
	if b.frozen {
		return nil, &BuildError{Op: "build", Err: ErrFrozen}
	}

	var errs []error
	for _, name := range b.order {
		c := b.chains[name]
		check := func(a Action, module ModuleID, what string) {
			j, ok := a.(Jump)
			if !ok {
				return
			}
			if _, exists := b.chains[j.Target]; !exists {
				errs = append(errs, &BuildError{
					Op: "build", Chain: name, Module: module,
					Err: fmt.Errorf("%s jumps to %q: %w", what, j.Target, ErrUnknownChain),
				})
			}
		}
		check(c.def, c.owner, "default action")
		check(c.exc, c.owner, "exception action")
		for i, r := range c.rules {
			check(r.Action, r.Module, fmt.Sprintf("rule %d (%s)", i, r.Description))
		}
	}
	if len(errs) == 0 {
		errs = append(errs, b.unconditionalCycles()...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	b.frozen = true
	r := &Registry{
		chains:   b.chains,
		order:    slices.Clone(b.order),
		md:       b.md,
		maxHops:  DefaultMaxHops,
		observer: NopObserver{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.tracer == nil {
		r.tracer = defaultTracer()
	}
	return r, nil
}

// unconditionalCycles finds loops that a request would follow forever
// without any rule able to break out. Each cycle is reported once, from its
// smallest member.
func (b *Builder) unconditionalCycles() []error {
	next := func(n Name) (Name, bool) {
		c := b.chains[n]
		if len(c.rules) > 0 {
			return "", false
		}
		j, ok := c.def.(Jump)
		return j.Target, ok
	}

	var errs []error
	for _, start := range b.order {
		path := []Name{start}
		seen := map[Name]bool{start: true}
		cur := start
		for {
			n, ok := next(cur)
			if !ok {
				break
			}
			if n == start {
				if slices.Min(path) == start {
					parts := make([]string, 0, len(path)+1)
					for _, p := range path {
						parts = append(parts, string(p))
					}
					parts = append(parts, string(start))
					errs = append(errs, &BuildError{
						Op: "build", Chain: start, Module: b.chains[start].owner,
						Err: fmt.Errorf("%w: %s", ErrUnconditionalCycle, strings.Join(parts, " -> ")),
					})
				}
				break
			}
			if seen[n] {
				break
			}
			seen[n] = true
			path = append(path, n)
			cur = n
		}
	}
	return errs
}

// Extender is the mutation surface handed to one module. Every change it
// makes is attributed to that module.
type Extender struct {
	b     *Builder
	owner ModuleID
}

func (e *Extender) Owner() ModuleID { return e.owner }

func (e *Extender) fail(op string, name Name, err error) error {
	return &BuildError{Op: op, Chain: name, Module: e.owner, Err: err}
}

func (e *Extender) lookup(op string, name Name) (*Chain, error) {
	if e.b.frozen {
		return nil, e.fail(op, name, ErrFrozen)
	}
	c, ok := e.b.chains[name]
	if !ok {
		return nil, e.fail(op, name, ErrUnknownChain)
	}
	return c, nil
}

// HasChain reports whether a chain with that name has been created.
func (e *Extender) HasChain(name Name) bool {
	_, ok := e.b.chains[name]
	return ok
}

// CreateChain registers an empty chain. It fails without side effects if the
// name is taken or an action is missing.
func (e *Extender) CreateChain(name Name, defaultAction, exceptionAction Action) error {
	const op = "create chain"
	switch {
	case e.b.frozen:
		return e.fail(op, name, ErrFrozen)
	case name == "":
		return e.fail(op, name, fmt.Errorf("%w: empty chain name", ErrInvalid))
	case !validAction(defaultAction):
		return e.fail(op, name, fmt.Errorf("%w: default action %v", ErrInvalid, defaultAction))
	case !validAction(exceptionAction):
		return e.fail(op, name, fmt.Errorf("%w: exception action %v", ErrInvalid, exceptionAction))
	}
	if prev, ok := e.b.chains[name]; ok {
		return e.fail(op, name, fmt.Errorf("%w (created by %s)", ErrDuplicateChain, prev.owner))
	}
	e.b.chains[name] = &Chain{name: name, owner: e.owner, def: defaultAction, exc: exceptionAction}
	e.b.order = append(e.b.order, name)
	return nil
}

func (e *Extender) registered(op string, name Name, p Processor) (*Chain, RegisteredProcessor, error) {
	c, err := e.lookup(op, name)
	if err != nil {
		return nil, RegisteredProcessor{}, err
	}
	if p == nil {
		return nil, RegisteredProcessor{}, e.fail(op, name, fmt.Errorf("%w: nil processor", ErrInvalid))
	}
	return c, RegisteredProcessor{Module: e.owner, Name: processorName(p), Processor: p}, nil
}

// AppendProcessor adds p after every processor already on the chain.
func (e *Extender) AppendProcessor(name Name, p Processor) error {
	c, rp, err := e.registered("append processor", name, p)
	if err != nil {
		return err
	}
	c.processors = append(c.processors, rp)
	return nil
}

// PrependProcessor adds p before every processor already on the chain.
func (e *Extender) PrependProcessor(name Name, p Processor) error {
	c, rp, err := e.registered("prepend processor", name, p)
	if err != nil {
		return err
	}
	c.processors = slices.Insert(c.processors, 0, rp)
	return nil
}

// Route appends a rule. Rules are evaluated in the order they were added.
// Jump targets are checked by Build, so a rule may point at a chain another
// module has yet to create.
func (e *Extender) Route(name Name, action Action, m Matcher, description string) error {
	const op = "route"
	c, err := e.lookup(op, name)
	if err != nil {
		return err
	}
	if m == nil {
		return e.fail(op, name, fmt.Errorf("%w: nil matcher", ErrInvalid))
	}
	if !validAction(action) {
		return e.fail(op, name, fmt.Errorf("%w: action %v", ErrInvalid, action))
	}
	c.rules = append(c.rules, Rule{Module: e.owner, Matcher: m, Action: action, Description: description})
	return nil
}

// RouteIfFlagIsSet routes when flag holds true.
func (e *Extender) RouteIfFlagIsSet(name Name, action Action, flag metadata.Key[bool]) error {
	return e.Route(name, action, IfFlagIsSet(flag), "if "+flag.Name()+" is set")
}

// RouteIfSet routes when any value is stored under k.
func (e *Extender) RouteIfSet(name Name, action Action, k metadata.Named) error {
	return e.Route(name, action, IfSet(k), "if "+k.Name()+" is present")
}

// RouteIfEquals routes when k holds want.
func RouteIfEquals[T comparable](e *Extender, name Name, action Action, k metadata.Key[T], want T) error {
	return e.Route(name, action, IfEquals(k, want), fmt.Sprintf("if %s == %v", k.Name(), want))
}

// GetMetaDatum reads the shared build metadata.
func GetMetaDatum[T any](e *Extender, k metadata.Key[T]) (T, error) {
	return metadata.Get(e.b.md, k)
}

// LookupMetaDatum reads the shared build metadata without failing on absence.
func LookupMetaDatum[T any](e *Extender, k metadata.Key[T]) (T, bool) {
	return metadata.Lookup(e.b.md, k)
}

// AddMetaDatum writes the shared build metadata.
func AddMetaDatum[T any](e *Extender, k metadata.Key[T], v T) error {
	if e.b.frozen {
		return e.fail("add metadatum", "", ErrFrozen)
	}
	metadata.Set(e.b.md, k, v)
	return nil
}
