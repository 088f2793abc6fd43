package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/httpchain"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

// LimitedChain answers requests that ran out of tokens.
const LimitedChain chain.Name = "ratelimit.limited"

// LimitedKey is set on requests that were denied.
var LimitedKey = metadata.NewKey[bool]("ratelimit.limited")

// unknownClient buckets requests without a resolved client address together.
const unknownClient = "unknown"

type Module struct {
	limiter    *Limiter
	retryAfter time.Duration
}

// New wraps l. retryAfter is advertised to clients in the Retry-After header.
func New(l *Limiter, retryAfter time.Duration) *Module {
	if retryAfter <= 0 {
		retryAfter = 30 * time.Second
	}
	return &Module{limiter: l, retryAfter: retryAfter}
}

func (m *Module) Register(ext *chain.Extender) error {
	if err := ext.CreateChain(LimitedChain,
		chain.Jump{Target: httpchain.RespondChain},
		chain.Jump{Target: httpchain.ExceptionChain},
	); err != nil {
		return err
	}
	if err := ext.AppendProcessor(LimitedChain, chain.NamedFunc("reject", m.reject)); err != nil {
		return err
	}
	if err := ext.PrependProcessor(httpchain.EntryChain, chain.NamedFunc("take-token", m.take)); err != nil {
		return err
	}
	return ext.RouteIfFlagIsSet(httpchain.EntryChain, chain.Jump{Target: LimitedChain}, LimitedKey)
}

func (m *Module) take(_ context.Context, md *metadata.MetaData) error {
	ip, ok := metadata.Lookup(md, httpchain.ClientIPKey)
	if !ok || ip == "" {
		ip = unknownClient
	}
	if !m.limiter.Allow(ip) {
		metadata.Set(md, LimitedKey, true)
	}
	return nil
}

func (m *Module) reject(_ context.Context, md *metadata.MetaData) error {
	httpchain.ResponseHeaders(md).Set("Retry-After", strconv.Itoa(int(m.retryAfter.Seconds())))
	// no detail about limits, remaining budget or refill time
	httpchain.Respond(md, http.StatusTooManyRequests, httpchain.ErrorBody{Error: "too many requests"})
	return nil
}
