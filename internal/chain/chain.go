package chain

import "slices"

// Name identifies a chain within a registry.
type Name string

// ModuleID identifies the module that created or extended a chain.
type ModuleID string

// Chain is one state of the graph. Fields are only mutated through an
// Extender while the owning Builder is open.
type Chain struct {
	name       Name
	owner      ModuleID
	processors []RegisteredProcessor
	rules      []Rule
	def        Action
	exc        Action
}

func (c *Chain) Name() Name              { return c.name }
func (c *Chain) Owner() ModuleID         { return c.owner }
func (c *Chain) DefaultAction() Action   { return c.def }
func (c *Chain) ExceptionAction() Action { return c.exc }

// Processors returns the processors in execution order.
func (c *Chain) Processors() []RegisteredProcessor { return slices.Clone(c.processors) }

// Rules returns the rules in priority order.
func (c *Chain) Rules() []Rule { return slices.Clone(c.rules) }

// targets lists every Jump target referenced by the chain.
func (c *Chain) targets() []Name {
	var out []Name
	add := func(a Action) {
		if j, ok := a.(Jump); ok {
			out = append(out, j.Target)
		}
	}
	add(c.def)
	add(c.exc)
	for _, r := range c.rules {
		add(r.Action)
	}
	return out
}
