// Package xerrors records where errors are created and wrapped. New and
// WithStack capture a full stack once, Wrap only the frame that added its
// message, so deep wrap chains stay cheap and the logger can still show
// every call site.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxDepth = 64

// stacked carries the stack at the point it was created.
type stacked struct {
	error
	pcs []uintptr
}

func (e *stacked) Unwrap() error       { return e.error }
func (e *stacked) StackPCs() []uintptr { return e.pcs }
func (e *stacked) IsXerrorsWrapper()   {}

// annotated prefixes err with msg and records the frame that called Wrap.
type annotated struct {
	msg string
	err error
	pc  uintptr
}

func (e *annotated) Error() string     { return e.msg + ": " + e.err.Error() }
func (e *annotated) Unwrap() error     { return e.err }
func (e *annotated) PC() uintptr       { return e.pc }
func (e *annotated) IsXerrorsWrapper() {}

// callers returns up to depth frames, skipping runtime.Callers, callers and
// skip more.
func callers(skip, depth int) []uintptr {
	pcs := make([]uintptr, depth)
	return pcs[:runtime.Callers(skip+2, pcs)]
}

// withStack is called directly by an exported function, so the frame that
// matters is two above it.
func withStack(err error) error {
	return &stacked{error: err, pcs: callers(2, maxDepth)}
}

func annotate(err error, msg string) error {
	var pc uintptr
	if pcs := callers(2, 1); len(pcs) == 1 {
		pc = pcs[0]
	}
	return &annotated{msg: msg, err: err, pc: pc}
}

func New(msg string) error { return withStack(errors.New(msg)) }

// Newf formats like fmt.Errorf, %w included.
func Newf(format string, args ...any) error { return withStack(fmt.Errorf(format, args...)) }

func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return withStack(err)
}

// EnsureTrace adds a stack unless err already carries one.
func EnsureTrace(err error) error {
	if err == nil || HasStack(err) {
		return err
	}
	return withStack(err)
}

// HasStack reports whether any error in err's chain carries a stack.
func HasStack(err error) bool {
	var s interface{ StackPCs() []uintptr }
	return errors.As(err, &s) && len(s.StackPCs()) > 0
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return annotate(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return annotate(err, fmt.Sprintf(format, args...))
}
