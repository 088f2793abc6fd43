package chain

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

var (
	ErrDuplicateChain     = errors.New("chain already exists")
	ErrUnknownChain       = errors.New("unknown chain")
	ErrInvalid            = errors.New("invalid argument")
	ErrFrozen             = errors.New("registry already built")
	ErrUnconditionalCycle = errors.New("unconditional jump cycle")
	ErrHopLimit           = errors.New("chain hop limit exceeded")
)

// BuildError reports a failed structural change or a failed Build.
type BuildError struct {
	Op     string
	Chain  Name
	Module ModuleID
	Err    error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	b.WriteString("chain: ")
	b.WriteString(e.Op)
	if e.Chain != "" {
		fmt.Fprintf(&b, " %q", e.Chain)
	}
	if e.Module != "" {
		fmt.Fprintf(&b, " (module %s)", e.Module)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *BuildError) Unwrap() error { return e.Err }

// PanicError is recorded when a processor or matcher panics.
type PanicError struct {
	Value any
	pcs   []uintptr
}

func newPanicError(v any) *PanicError {
	pcs := make([]uintptr, 64)
	// skip runtime.Callers, newPanicError and the deferred recover func
	n := runtime.Callers(3, pcs)
	return &PanicError{Value: v, pcs: pcs[:n]}
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// StackPCs exposes the panic site to the logger's stack rendering.
func (e *PanicError) StackPCs() []uintptr { return e.pcs }
