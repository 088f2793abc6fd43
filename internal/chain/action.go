package chain

// Action is the outcome of a routing decision. The set of implementations is
// closed: Jump, Consume and Drop.
type Action interface {
	action()
	String() string
}

// Jump transfers control to the named chain.
type Jump struct {
	Target Name
}

// Consume ends the run; the metadata holds the result.
type Consume struct{}

// Drop ends the run without producing output.
type Drop struct{}

func (Jump) action()    {}
func (Consume) action() {}
func (Drop) action()    {}

func (j Jump) String() string  { return "jump(" + string(j.Target) + ")" }
func (Consume) String() string { return "consume" }
func (Drop) String() string    { return "drop" }

func validAction(a Action) bool {
	switch a := a.(type) {
	case Jump:
		return a.Target != ""
	case Consume, Drop:
		return true
	default:
		return false
	}
}
