package chain

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

// Outcome is how a run terminated.
type Outcome int

const (
	Consumed Outcome = iota + 1
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Consumed:
		return "consumed"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Result describes a finished run. Err is the last processor or matcher
// failure that was routed through an exception action, if any.
type Result struct {
	Outcome Outcome
	Chain   Name
	Path    []Name
	Err     error
}

// Source seeds the metadata of a new request before the graph runs. Every
// transport adapter implements it.
type Source interface {
	Enter(md *metadata.MetaData)
}

// Handle runs src through the graph starting at entry with fresh metadata.
func (r *Registry) Handle(ctx context.Context, entry Name, src Source) (*metadata.MetaData, Result, error) {
	md := metadata.New()
	src.Enter(md)
	res, err := r.Run(ctx, entry, md)
	return md, res, err
}

// Run drives md through the graph starting at entry until an action
// terminates it. The returned error is reserved for failures no exception
// action can absorb: an unknown entry chain or an exhausted hop limit.
func (r *Registry) Run(ctx context.Context, entry Name, md *metadata.MetaData) (res Result, err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "chain.run", trace.WithAttributes(attribute.String("chain.entry", string(entry))))
	defer func() {
		span.SetAttributes(
			attribute.String("chain.outcome", res.Outcome.String()),
			attribute.Int("chain.hops", len(res.Path)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.observer.Finished(ctx, entry, res, err, time.Since(start))
	}()

	cur := entry
	for {
		if len(res.Path) >= r.maxHops {
			return res, fmt.Errorf("chain: run from %q after %d chains (last %q): %w", entry, len(res.Path), cur, ErrHopLimit)
		}
		c, ok := r.chains[cur]
		if !ok {
			return res, &BuildError{Op: "run", Chain: cur, Err: ErrUnknownChain}
		}
		res.Path = append(res.Path, cur)
		r.observer.ChainEntered(ctx, cur)

		action := r.enter(ctx, c, md, &res)
		switch a := action.(type) {
		case Jump:
			cur = a.Target
		case Consume:
			res.Outcome, res.Chain = Consumed, cur
			return res, nil
		case Drop:
			res.Outcome, res.Chain = Dropped, cur
			return res, nil
		}
	}
}

// enter runs one chain and returns the action it selects.
func (r *Registry) enter(ctx context.Context, c *Chain, md *metadata.MetaData, res *Result) Action {
	ctx, span := r.tracer.Start(ctx, "chain "+string(c.name), trace.WithAttributes(
		attribute.String("chain.name", string(c.name)),
		attribute.String("chain.owner", string(c.owner)),
	))
	defer span.End()
	ctx = log.WithFields(ctx, "chain", string(c.name))

	for _, p := range c.processors {
		if err := runProcessor(ctx, p.Processor, md); err != nil {
			r.failed(ctx, span, c, p.Name, err, md, res)
			return c.exc
		}
	}

	for _, rule := range c.rules {
		matched, err := evalRule(rule, md)
		if err != nil {
			r.failed(ctx, span, c, "rule: "+rule.Description, err, md, res)
			return c.exc
		}
		if matched {
			span.SetAttributes(attribute.String("chain.rule", rule.Description))
			return rule.Action
		}
	}
	return c.def
}

func (r *Registry) failed(ctx context.Context, span trace.Span, c *Chain, processor string, err error, md *metadata.MetaData, res *Result) {
	metadata.Set(md, ErrorKey, err)
	metadata.Set(md, FailedChainKey, c.name)
	metadata.Set(md, FailedProcessorKey, processor)
	res.Err = err

	span.RecordError(err)
	span.SetStatus(codes.Error, processor)
	r.observer.ProcessorFailed(ctx, c.name, processor, err)
	log.FromContext(ctx).Warn(ctx, "chain processor failed",
		"processor", processor,
		"exception_action", c.exc.String(),
		"err", err,
	)
}

func runProcessor(ctx context.Context, p Processor, md *metadata.MetaData) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = newPanicError(v)
		}
	}()
	return p.Process(ctx, md)
}

func evalRule(rule Rule, md *metadata.MetaData) (matched bool, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = newPanicError(v)
		}
	}()
	return rule.Matcher(md), nil
}
