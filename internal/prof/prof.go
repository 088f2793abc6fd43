// Package prof runs continuous profiling with the Pyroscope agent.
package prof

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/xerrors"
)

type Options struct {
	Enabled              bool
	AppName              string
	ServerAddress        string
	AuthToken            string
	TenantID             string
	Tags                 map[string]string
	ProfileMutexFraction int
	BlockProfileRate     int
}

// StopFunc stops the agent. It is safe to call more than once.
type StopFunc func()

// ProfileTypes are collected by every agent this package starts.
var ProfileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

// Start launches the agent when enabled. The returned StopFunc is never nil,
// even alongside an error.
func Start(ctx context.Context, opts Options) (StopFunc, error) {
	L := log.FromContext(ctx).With("server_address", opts.ServerAddress, "app_name", opts.AppName)
	if !opts.Enabled {
		L.Debug(ctx, "pyroscope disabled")
		return func() {}, nil
	}

	conf, err := config(opts, L)
	if err != nil {
		return func() {}, err
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	profiler, err := pyroscope.Start(conf)
	if err != nil {
		return func() {}, xerrors.Wrap(err, "start pyroscope agent")
	}
	L.Info(ctx, "pyroscope started")

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := profiler.Stop(); err != nil {
				L.Warn(context.Background(), "pyroscope stop failed", "err", err)
				return
			}
			L.Info(context.Background(), "pyroscope stopped")
		})
	}, nil
}

// config validates opts and maps them onto the agent's config.
func config(opts Options, L log.Logger) (pyroscope.Config, error) {
	if opts.ServerAddress == "" {
		return pyroscope.Config{}, xerrors.New("pyroscope: server address is required")
	}
	if opts.AppName == "" {
		return pyroscope.Config{}, xerrors.New("pyroscope: app name is required")
	}
	return pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		AuthToken:       opts.AuthToken,
		TenantID:        opts.TenantID,
		Tags:            opts.Tags,
		ProfileTypes:    ProfileTypes,
		Logger:          agentLogger{L: L},
	}, nil
}

// agentLogger routes the agent's own messages into the service log.
type agentLogger struct{ L log.Logger }

func (a agentLogger) Infof(format string, args ...any) {
	a.L.Debug(context.Background(), fmt.Sprintf(format, args...), "agent", "pyroscope")
}

func (a agentLogger) Debugf(format string, args ...any) {
	a.L.Debug(context.Background(), fmt.Sprintf(format, args...), "agent", "pyroscope")
}

func (a agentLogger) Errorf(format string, args ...any) {
	a.L.Warn(context.Background(), fmt.Sprintf(format, args...), "agent", "pyroscope")
}
