// Package pipeline assembles the HTTP chain graph a process serves from its
// feature configuration.
//
// The core HTTP module is always added first. Optional modules come from a
// compile-time catalog and are enabled by name, in the order the features
// list them. Routes declared in the features become a routing configurator.
package pipeline

import (
	"context"

	"github.com/keithlinneman/reqchain/internal/celrule"
	"github.com/keithlinneman/reqchain/internal/cfg"
	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/metrics"
	"github.com/keithlinneman/reqchain/internal/module"
	"github.com/keithlinneman/reqchain/internal/modules/httpcore"
	"github.com/keithlinneman/reqchain/internal/modules/jsonbody"
	"github.com/keithlinneman/reqchain/internal/modules/ratelimit"
	"github.com/keithlinneman/reqchain/internal/modules/routing"
	"github.com/keithlinneman/reqchain/internal/modules/secheaders"
)

// Module names accepted in Features.Modules.
const (
	JSONBody   = "jsonbody"
	SecHeaders = "secheaders"
	RateLimit  = "ratelimit"
	Routing    = "routing"
)

type Options struct {
	Logger log.Logger
	// Metrics receives chain and rate limit metrics. Optional.
	Metrics *metrics.ServerMetrics
	MaxHops int
	// CEL is shared by every route condition. One is created when nil.
	CEL *celrule.Env
	// Configurators run after the feature routes, for routes declared in code.
	Configurators []module.Configurator
}

// Catalog returns the optional modules f can enable. Factories read f when
// called, and the rate limiter's cleanup goroutine stops with ctx.
func Catalog(ctx context.Context, f *cfg.Features, o Options) *module.Catalog {
	return module.NewCatalog().
		MustRegister(JSONBody, func() module.Module {
			return jsonbody.New(jsonbody.WithIndent(f.HTTP.IndentJSON))
		}).
		MustRegister(SecHeaders, func() module.Module {
			return secheaders.New(secheaders.WithHSTS(f.HTTP.HSTS))
		}).
		MustRegister(RateLimit, func() module.Module {
			return ratelimit.New(newLimiter(ctx, f.RateLimit, o), f.RateLimit.RetryAfter)
		}).
		MustRegister(Routing, func() module.Module {
			return routing.New()
		})
}

// Build selects the modules named in f and builds the frozen registry.
func Build(ctx context.Context, f *cfg.Features, o Options) (*chain.Registry, error) {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	ctx = log.WithContext(ctx, o.Logger)

	selected, err := Catalog(ctx, f, o).Select(f.Modules)
	if err != nil {
		return nil, err
	}

	b := module.NewBuilder().
		AddModule(httpcore.New(httpcore.WithExposeErrors(f.HTTP.ExposeErrors))).
		AddModule(selected...)

	if len(f.Routes) > 0 {
		routes := routing.NewRoutes()
		if o.CEL != nil {
			routes.WithCEL(o.CEL)
		}
		for _, r := range f.Routes {
			routes.Static(routing.StaticRoute{
				Name:    r.Name,
				Method:  r.Method,
				Path:    r.Path,
				Expr:    r.When,
				Status:  r.Status,
				Body:    r.Body,
				Headers: r.Headers,
			})
		}
		b.AddConfigurator(routes)
	}
	b.AddConfigurator(o.Configurators...)

	var opts []chain.Option
	if o.MaxHops > 0 {
		opts = append(opts, chain.WithMaxHops(o.MaxHops))
	}
	if o.Metrics != nil {
		opts = append(opts, chain.WithObserver(o.Metrics.ChainObserver()))
	}
	b.WithChainOptions(opts...)

	reg, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	if o.Metrics != nil {
		o.Metrics.SetChainGraph(len(reg.Names()))
	}
	return reg, nil
}

func newLimiter(ctx context.Context, rl cfg.RateLimit, o Options) *ratelimit.Limiter {
	L, m := o.Logger, o.Metrics
	if L == nil {
		L = log.Nop()
	}
	return ratelimit.NewLimiter(ctx,
		ratelimit.WithRate(rl.PerSecond, rl.Burst),
		ratelimit.WithTTL(rl.TTL),
		ratelimit.WithMaxKeys(rl.MaxKeys),
		// only log the first time a client is denied each time it is cleaned from the bucket
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnDenied(func(string) {
			if m != nil {
				m.IncRateLimitDenied()
			}
		}),
		ratelimit.WithOnCapacity(func() {
			if m != nil {
				m.IncRateLimitCapacity()
			}
			L.Warn(ctx, "rate limit capacity reached, rejecting new clients until some are evicted")
		}),
	)
}
