package chain

import (
	"context"
	"time"
)

// Observer receives execution events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ChainEntered(ctx context.Context, chain Name)
	ProcessorFailed(ctx context.Context, chain Name, processor string, err error)
	Finished(ctx context.Context, entry Name, res Result, err error, elapsed time.Duration)
}

type NopObserver struct{}

func (NopObserver) ChainEntered(context.Context, Name)                           {}
func (NopObserver) ProcessorFailed(context.Context, Name, string, error)         {}
func (NopObserver) Finished(context.Context, Name, Result, error, time.Duration) {}
