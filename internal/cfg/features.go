package cfg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FeaturesEnvPrefix is the prefix for environment overrides of the feature
// file. REQCHAIN_FEATURES_RATELIMIT_PER__SECOND sets ratelimit.per_second.
const FeaturesEnvPrefix = "REQCHAIN_FEATURES_"

// Features selects what the request graph is built from.
type Features struct {
	// Modules are catalog names, registered in this order after the core
	// HTTP module.
	Modules   []string     `koanf:"modules"`
	HTTP      HTTPFeatures `koanf:"http"`
	RateLimit RateLimit    `koanf:"ratelimit"`
	Routes    []RouteSpec  `koanf:"routes"`
}

type HTTPFeatures struct {
	// ExposeErrors puts unexpected error text into 500 bodies. Never enable
	// on a public listener.
	ExposeErrors bool `koanf:"expose_errors"`
	IndentJSON   bool `koanf:"indent_json"`
	HSTS         bool `koanf:"hsts"`
}

type RateLimit struct {
	PerSecond  float64       `koanf:"per_second"`
	Burst      int           `koanf:"burst"`
	TTL        time.Duration `koanf:"ttl"`
	RetryAfter time.Duration `koanf:"retry_after"`
	MaxKeys    int           `koanf:"max_keys"`
}

// RouteSpec declares a static route. When is an optional CEL condition over
// the request metadata, exposed to the expression as meta.
type RouteSpec struct {
	Name    string            `koanf:"name"`
	Method  string            `koanf:"method"`
	Path    string            `koanf:"path"`
	When    string            `koanf:"when"`
	Status  int               `koanf:"status"`
	Body    any               `koanf:"body"`
	Headers map[string]string `koanf:"headers"`
}

// DefaultFeatures is used for anything the feature file leaves unset.
func DefaultFeatures() *Features {
	return &Features{
		Modules: []string{"secheaders", "ratelimit", "routing"},
		HTTP: HTTPFeatures{
			HSTS: true,
		},
		RateLimit: RateLimit{
			PerSecond:  10,
			Burst:      30,
			TTL:        5 * time.Minute,
			RetryAfter: 30 * time.Second,
			MaxKeys:    100000,
		},
	}
}

// LoadFeatures reads the TOML file at path, when given, then applies
// environment overrides on top of the defaults.
// Priority: environment > file > defaults.
func LoadFeatures(path string) (*Features, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load features file: %w", err)
		}
	}
	return decodeFeatures(k)
}

// ParseFeatures decodes a features TOML document with the same defaults and
// environment overrides as LoadFeatures. An empty document yields the
// defaults.
func ParseFeatures(doc []byte) (*Features, error) {
	k := koanf.New(".")
	if len(doc) > 0 {
		if err := k.Load(bytesProvider(doc), toml.Parser()); err != nil {
			return nil, fmt.Errorf("parse features: %w", err)
		}
	}
	return decodeFeatures(k)
}

// FeatureSource yields the raw features document. Sources are polled, so
// reads must be cheap enough to repeat.
type FeatureSource interface {
	FeaturesDoc(ctx context.Context) ([]byte, error)
	String() string
}

// FileSource reads features from a local file. The empty path yields no
// document, which parses to the defaults.
type FileSource string

func (f FileSource) FeaturesDoc(context.Context) ([]byte, error) {
	if f == "" {
		return nil, nil
	}
	b, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("load features file: %w", err)
	}
	return b, nil
}

func (f FileSource) String() string {
	if f == "" {
		return "defaults"
	}
	return "file:" + string(f)
}

// SSMGetter is the part of the SSM client used to fetch features.
type SSMGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource reads features from a (possibly SecureString) SSM parameter.
type SSMSource struct {
	Client SSMGetter
	Param  string
}

func (s SSMSource) FeaturesDoc(ctx context.Context) ([]byte, error) {
	out, err := s.Client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.Param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get ssm parameter %s: %w", s.Param, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("ssm parameter %s has no value", s.Param)
	}
	return []byte(*out.Parameter.Value), nil
}

func (s SSMSource) String() string { return "ssm:" + s.Param }

// bytesProvider feeds an in-memory document to a koanf parser.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) { return b, nil }

func (b bytesProvider) Read() (map[string]any, error) {
	return nil, errors.New("bytes provider does not support Read")
}

func decodeFeatures(k *koanf.Koanf) (*Features, error) {
	// Double underscores keep a literal underscore in the key
	if err := k.Load(env.Provider(FeaturesEnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, FeaturesEnvPrefix))
		s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
		s = strings.ReplaceAll(s, "_", ".")
		return strings.ReplaceAll(s, "%UNDERSCORE%", "_")
	}), nil); err != nil {
		return nil, fmt.Errorf("load features env: %w", err)
	}

	f := DefaultFeatures()
	if err := k.UnmarshalWithConf("", f, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           f,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid features: %w", err)
	}
	return f, nil
}

// Validate reports every invalid field at once.
func (f *Features) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(f.Modules))
	for _, m := range f.Modules {
		if m == "" {
			errs = append(errs, fmt.Errorf("modules: empty module name"))
			continue
		}
		if seen[m] {
			errs = append(errs, fmt.Errorf("modules: %q listed twice", m))
		}
		seen[m] = true
	}

	if f.RateLimit.PerSecond <= 0 {
		errs = append(errs, fmt.Errorf("ratelimit.per_second must be > 0 (got %v)", f.RateLimit.PerSecond))
	}
	if f.RateLimit.Burst < 1 {
		errs = append(errs, fmt.Errorf("ratelimit.burst must be >= 1 (got %d)", f.RateLimit.Burst))
	}
	if f.RateLimit.TTL <= 0 {
		errs = append(errs, fmt.Errorf("ratelimit.ttl must be > 0 (got %s)", f.RateLimit.TTL))
	}
	if f.RateLimit.MaxKeys < 0 {
		errs = append(errs, fmt.Errorf("ratelimit.max_keys must be >= 0 (got %d)", f.RateLimit.MaxKeys))
	}

	names := make(map[string]bool, len(f.Routes))
	for i, r := range f.Routes {
		switch {
		case r.Name == "":
			errs = append(errs, fmt.Errorf("routes[%d]: name is required", i))
		case names[r.Name]:
			errs = append(errs, fmt.Errorf("routes[%d]: duplicate name %q", i, r.Name))
		}
		names[r.Name] = true
		if r.Path != "" && !strings.HasPrefix(r.Path, "/") {
			errs = append(errs, fmt.Errorf("routes[%d]: path %q must start with /", i, r.Path))
		}
		if r.Method != "" && r.Method != strings.ToUpper(r.Method) {
			errs = append(errs, fmt.Errorf("routes[%d]: method %q must be upper case", i, r.Method))
		}
		if r.Status != 0 && http.StatusText(r.Status) == "" {
			errs = append(errs, fmt.Errorf("routes[%d]: unknown status %d", i, r.Status))
		}
	}

	return errors.Join(errs...)
}
