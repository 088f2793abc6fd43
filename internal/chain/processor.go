package chain

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/keithlinneman/reqchain/internal/metadata"
)

// Processor is a side effect run on entry to a chain. Returning an error (or
// panicking) sends the run to the chain's exception action.
type Processor interface {
	Process(ctx context.Context, md *metadata.MetaData) error
}

type ProcessorFunc func(ctx context.Context, md *metadata.MetaData) error

func (f ProcessorFunc) Process(ctx context.Context, md *metadata.MetaData) error { return f(ctx, md) }

type namedProcessor struct {
	name string
	Processor
}

func (n namedProcessor) Name() string { return n.name }

// Named attaches a diagnostic name to p.
func Named(name string, p Processor) Processor {
	return namedProcessor{name: name, Processor: p}
}

// NamedFunc is Named for a plain function.
func NamedFunc(name string, f func(ctx context.Context, md *metadata.MetaData) error) Processor {
	return Named(name, ProcessorFunc(f))
}

// RegisteredProcessor is a processor together with the module that added it.
type RegisteredProcessor struct {
	Module    ModuleID
	Name      string
	Processor Processor
}

func processorName(p Processor) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	if f, ok := p.(ProcessorFunc); ok {
		if fn := runtime.FuncForPC(reflect.ValueOf(f).Pointer()); fn != nil {
			name := fn.Name()
			if i := strings.LastIndexByte(name, '/'); i >= 0 {
				name = name[i+1:]
			}
			return name
		}
	}
	return fmt.Sprintf("%T", p)
}
