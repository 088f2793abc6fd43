package httpserver

import (
	"net/http"

	"github.com/keithlinneman/reqchain/internal/health"
	"github.com/keithlinneman/reqchain/internal/httpmw"
	"github.com/keithlinneman/reqchain/internal/log"
)

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 1 << 20

type Options struct {
	Logger log.Logger
	Port   int

	UseRecoverMW bool
	// OnPanic runs after a recovered panic is logged.
	OnPanic func()

	MetricsMW    httpmw.Middleware
	Health       health.Probe
	Readiness    health.Probe
	ClientIPOpts httpmw.ClientIPOptions
	MaxBodyBytes int64

	// Chains serves every request that is not a health check, normally a
	// pipeline.Live.
	Chains http.Handler
}
