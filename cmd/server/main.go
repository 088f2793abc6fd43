// Command server runs the request chain engine: a public listener that
// routes every request through the chain graph built from the features
// document, and an ops listener for probes, metrics, pprof and /-/chains.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/reqchain/internal/cfg"
	"github.com/keithlinneman/reqchain/internal/health"
	"github.com/keithlinneman/reqchain/internal/httpmw"
	"github.com/keithlinneman/reqchain/internal/httpserver"
	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/metrics"
	"github.com/keithlinneman/reqchain/internal/opshttp"
	"github.com/keithlinneman/reqchain/internal/pipeline"
	v "github.com/keithlinneman/reqchain/internal/version"
)

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup always happens.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var (
		conf        cfg.App
		showVersion bool
		printGraph  string
	)
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "print version and build information and exit")
	flag.StringVar(&printGraph, "print-graph", "", "build the chain graph, print it (dot|json) and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		return 0
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}

	lg, err := newLogger(conf)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		return 1
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	// AWS is only needed for features in SSM and graph snapshots in S3
	var awsCfg *aws.Config
	if conf.FeaturesSSMParam != "" || conf.GraphS3Bucket != "" {
		c, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			return 1
		}
		awsCfg = &c
	}

	var source cfg.FeatureSource = cfg.FileSource(conf.FeaturesFile)
	if conf.FeaturesSSMParam != "" {
		source = cfg.SSMSource{Client: ssm.NewFromConfig(*awsCfg), Param: conf.FeaturesSSMParam}
	}

	// -print-graph needs no listeners or telemetry
	if printGraph != "" {
		return runPrintGraph(ctx, L, source, conf.MaxChainHops, printGraph, os.Stdout)
	}

	logStartup(ctx, L, conf, vi)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	tel := startTelemetry(ctx, L, conf, vi, m)
	defer tel.stop(context.Background())

	// held while draining so load balancers stop routing to us
	var gate health.Gate

	live := pipeline.NewLive()
	defer live.Close()

	readiness := health.All(
		gate.Probe(),
		health.Named("chains", health.CheckFunc(func(context.Context) error { return live.ReadyErr() })),
	)

	watcher := pipeline.NewWatcher(&pipeline.WatcherOptions{
		Logger:       L,
		Source:       source,
		Live:         live,
		PollInterval: conf.FeaturesPoll,
		Build: pipeline.Options{
			Logger:  L,
			Metrics: m,
			MaxHops: conf.MaxChainHops,
		},
		Metrics: m,
		OnSwap: func(s *pipeline.Snapshot) {
			if conf.GraphS3Bucket != "" {
				publishGraph(ctx, L, conf, awsCfg, s.Registry)
			}
		},
	})
	if err := watcher.Load(ctx); err != nil {
		// never serve without a graph, the supervisor restarts us
		L.Error(ctx, err, "failed to build chain graph", "source", source.String())
		return 1
	}
	L.Info(ctx, "built chain graph",
		"source", source.String(),
		"features_hash", live.Hash(),
		"chains", len(live.Registry().Names()),
	)
	if conf.FeaturesPoll > 0 {
		go watcher.Run(ctx)
	}

	proxies, _ := conf.ProxyPrefixes() // validated above
	appStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Chains:       live,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{
			TrustedHops:    conf.TrustedProxyHops,
			TrustedProxies: proxies,
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		return 1
	}

	// the ops listener refuses public peers and forwarded requests itself,
	// in case the security group or a load balancer ever exposes it
	opsStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		Chains:       live.Registry,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		_ = appStop(context.Background())
		return 1
	}

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd readiness not sent", "reason", err.Error())
	}

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	drain(L, &gate, conf.DrainPeriod)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := appStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	tel.stop(shutdownCtx)

	L.Info(context.Background(), "shutdown complete")
	return 0
}

func logStartup(ctx context.Context, L log.Logger, conf cfg.App, vi v.Info) {
	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.Dirty(),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"drain_period", conf.DrainPeriod.String(),
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"max_chain_hops", conf.MaxChainHops,
		"features_file", conf.FeaturesFile,
		"features_ssm_param", conf.FeaturesSSMParam,
		"features_poll_interval", conf.FeaturesPoll.String(),
		"graph_s3_bucket", conf.GraphS3Bucket,
	)
}
