package main

import (
	"context"
	"sync"

	"github.com/keithlinneman/reqchain/internal/cfg"
	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/metrics"
	"github.com/keithlinneman/reqchain/internal/otelx"
	"github.com/keithlinneman/reqchain/internal/prof"
	v "github.com/keithlinneman/reqchain/internal/version"
)

func newLogger(conf cfg.App) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		stackLvl = lvl
	}
	return log.New(log.Options{
		App:               v.AppName,
		Version:           v.Version,
		Commit:            v.Commit,
		BuildId:           v.BuildId,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
}

// telemetry owns the profiler and tracer. Failures to start either are
// logged and the process runs without them.
type telemetry struct {
	L        log.Logger
	stopProf prof.StopFunc
	stopOTEL otelx.ShutdownFunc
	once     sync.Once
}

func startTelemetry(ctx context.Context, L log.Logger, conf cfg.App, vi v.Info, m *metrics.ServerMetrics) *telemetry {
	t := &telemetry{L: L}

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		AuthToken:     conf.PyroAuthToken,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	t.stopProf = stopProf

	// the collector runs on localhost, so no TLS
	stopOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	t.stopOTEL = stopOTEL
	return t
}

// stop flushes spans and stops the profiler once.
func (t *telemetry) stop(ctx context.Context) {
	t.once.Do(func() {
		if err := t.stopOTEL(ctx); err != nil {
			t.L.Error(context.Background(), err, "otel shutdown")
		}
		t.stopProf()
	})
}
