// Package cfg holds process configuration. App is the flag/env surface read
// once at startup; Features (features.go) is the reloadable document that
// decides which modules and routes the chain graph carries.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/reqchain/internal/log"
)

// EnvPrefix is prepended to every flag's environment name.
const EnvPrefix = "REQCHAIN_"

type App struct {
	// logging
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	// listeners
	HTTPPort         int
	AdminPort        int
	TrustedProxyHops int
	TrustedProxies   string
	DrainPeriod      time.Duration

	// telemetry
	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	PyroAuthToken   string
	OTLPEndpoint    string
	TraceSample     float64

	// chain graph
	MaxChainHops     int
	FeaturesFile     string
	FeaturesSSMParam string
	FeaturesPoll     time.Duration
	GraphS3Bucket    string
	GraphS3Prefix    string
}

// Register binds every App field to fs with its default.
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "lowest level whose records carry a stack (debug|info|warn|error)")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "log one entry per wrapped error with its call site")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "public listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen TCP port (1..65535)")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 1, "X-Forwarded-For entries appended by our own proxies (0 ignores the header)")
	fs.DurationVar(&c.DrainPeriod, "drain-period", 60*time.Second, "how long readiness fails before listeners close on shutdown")
	fs.StringVar(&c.TrustedProxies, "trusted-proxies", "", "comma separated CIDRs allowed to set X-Forwarded-For (default private, loopback and link-local)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "serve /debug/pprof on the ops port")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "export OTLP traces to -otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "push profiles to -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server URL")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "pyroscope tenant (X-Scope-OrgID)")
	fs.StringVar(&c.PyroAuthToken, "pyro-auth-token", "", "pyroscope bearer token")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC collector (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio for new roots (0..1)")

	fs.IntVar(&c.MaxChainHops, "max-chain-hops", 256, "max chains one request may enter (1..65536)")
	fs.StringVar(&c.FeaturesFile, "features-file", "", "TOML file selecting modules, routes and rate limits")
	fs.StringVar(&c.FeaturesSSMParam, "features-ssm-param", "", "ssm parameter holding the features TOML (overrides -features-file)")
	fs.DurationVar(&c.FeaturesPoll, "features-poll-interval", 0, "re-read features and rebuild the graph on change (0 disables)")
	fs.StringVar(&c.GraphS3Bucket, "graph-s3-bucket", "", "s3 bucket to publish the chain graph to at startup")
	fs.StringVar(&c.GraphS3Prefix, "graph-s3-prefix", "apps/reqchain/graphs", "s3 key prefix for published chain graphs")
}

// EnvName maps flag "foo-bar" to PREFIX_FOO_BAR.
func EnvName(prefix, flagName string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// FillFromEnv sets flags that were not passed on the command line from the
// environment. A flag given explicitly wins over its variable, which wins
// over the default. Invalid values are reported through logf and skipped.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvName(prefix, f.Name)
		val, ok := os.LookupEnv(key)
		switch {
		case !ok:
		case explicit[f.Name]:
			logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, val)
		default:
			prev := f.Value.String()
			if err := fs.Set(f.Name, val); err != nil {
				_ = fs.Set(f.Name, prev)
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, val, err)
			}
		}
	})
}

// ProxyPrefixes parses TrustedProxies. Empty means none were configured.
func (c App) ProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range strings.Split(c.TrustedProxies, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES entry %q: %w", s, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// problems collects every invalid field so one run reports them all.
type problems []error

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Errorf(format, args...))
}

func (p *problems) port(name string, v int) {
	if v < 1 || v > 65535 {
		p.addf("invalid %s %d (must be 1..65535)", name, v)
	}
}

func (p *problems) level(name, v string) {
	if _, err := log.ParseLevel(v); err != nil {
		p.addf("invalid %s %q: %w", name, v, err)
	}
}

// Validate reports every out of range or malformed value, or nil.
func Validate(c App) error {
	var p problems

	p.port("HTTP_PORT", c.HTTPPort)
	p.port("ADMIN_PORT", c.AdminPort)
	if c.AdminPort == c.HTTPPort {
		p.addf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 16 {
		p.addf("TRUSTED_PROXY_HOPS must be 0..16 (got %d)", c.TrustedProxyHops)
	}
	if c.DrainPeriod < 0 || c.DrainPeriod > 10*time.Minute {
		p.addf("DRAIN_PERIOD must be 0..10m (got %s)", c.DrainPeriod)
	}
	if _, err := c.ProxyPrefixes(); err != nil {
		p = append(p, err)
	}

	p.level("LOG_LEVEL", c.LogLevel)
	if c.StacktraceLevel != "" {
		p.level("STACKTRACE_LEVEL", c.StacktraceLevel)
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		p.addf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		p.addf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample)
	}
	if c.EnableTracing {
		// the grpc exporter takes host:port without a scheme
		if c.OTLPEndpoint == "" {
			p.addf("OTLP_ENDPOINT required when ENABLE_TRACING=true")
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			p.addf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err)
		}
	}
	if c.EnablePyroscope {
		if u, err := url.Parse(c.PyroServer); c.PyroServer == "" {
			p.addf("PYRO_SERVER required when ENABLE_PYROSCOPE=true")
		} else if err != nil || u.Scheme == "" || u.Host == "" {
			p.addf("PYRO_SERVER must be a URL (got %q)", c.PyroServer)
		}
		if c.PyroTenantID == "" {
			p.addf("PYRO_TENANT required when ENABLE_PYROSCOPE=true")
		}
	}

	if c.MaxChainHops < 1 || c.MaxChainHops > 65536 {
		p.addf("MAX_CHAIN_HOPS must be 1..65536 (got %d)", c.MaxChainHops)
	}
	switch {
	case c.FeaturesPoll < 0:
		p.addf("FEATURES_POLL_INTERVAL must be >= 0 (got %s)", c.FeaturesPoll)
	case c.FeaturesPoll > 0 && c.FeaturesPoll < time.Second:
		p.addf("FEATURES_POLL_INTERVAL must be at least 1s (got %s)", c.FeaturesPoll)
	}
	if c.GraphS3Bucket != "" && strings.Trim(c.GraphS3Prefix, "/") == "" {
		p.addf("GRAPH_S3_PREFIX is required when GRAPH_S3_BUCKET is set")
	}

	return errors.Join(p...)
}
