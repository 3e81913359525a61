package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/keithlinneman/tmodkit/internal/log"
)

// EnvPrefix is prepended to upper-cased flag names by FillFromEnv.
const EnvPrefix = "TMODKIT_"

type App struct {
	ConfigFile string

	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int
	EnableTracing     bool
	OTLPEndpoint      string
	TraceSample       float64
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	PyroServer        string
	PyroTenantID      string

	WorkDir          string
	OutputDir        string
	ModName          string
	FrameRate        float64
	BuildTarget      string
	FailClosedFilter bool

	S3Bucket string
	S3Prefix string
	SSMParam string
	KMSKeyID string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.ConfigFile, "config", "", "TOML file of flag defaults (keys are flag names)")
	fs.BoolVar(&c.LogJSON, "log-json", false, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen TCP port for serve (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", false, "Enable pprof handlers on the ops port")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable continuous profiling push to pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "Pyroscope server URL (http(s)://host:port)")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "Pyroscope tenant ID")

	fs.StringVar(&c.WorkDir, "work-dir", ".", "root containing Mods/ and Temp/")
	fs.StringVar(&c.OutputDir, "output-dir", "", "build output directory (default <work-dir>/Mods)")
	fs.StringVar(&c.ModName, "mod-name", "", "name of the mod to build")
	fs.Float64Var(&c.FrameRate, "frame-rate", 60, "load scheduler frames per second (0 = unpaced)")
	fs.StringVar(&c.BuildTarget, "build-target", "standalone", "platform label for asset archives")
	fs.BoolVar(&c.FailClosedFilter, "fail-closed-filter", false, "abort a package when the component filter errors")

	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "s3 bucket holding published mods")
	fs.StringVar(&c.S3Prefix, "s3-prefix", "mods", "s3 key prefix for published mods")
	fs.StringVar(&c.SSMParam, "ssm-param", "", "ssm parameter holding the current mod hash")
	fs.StringVar(&c.KMSKeyID, "kms-key-id", "", "kms key that signs releases on publish and verifies them on fetch (optional)")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// FillFromFile applies a TOML file of flag values to every flag not yet
// set by the CLI or FillFromEnv, so precedence becomes
// cli flag > env var > file > default. Keys are flag names; underscores
// are accepted in place of dashes.
func FillFromFile(fs *flag.FlagSet, path string) error {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		name := strings.ReplaceAll(k, "_", "-")
		if name == "config" || fs.Lookup(name) == nil {
			errs = append(errs, fmt.Errorf("%s: unknown key %q", path, k))
			continue
		}
		if set[name] {
			continue
		}
		switch v := raw[k].(type) {
		case string, bool, int64, float64:
			if err := fs.Set(name, fmt.Sprint(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: key %q: %w", path, k, err))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: key %q must be a scalar (got %T)", path, k, v))
		}
	}
	return errors.Join(errs...)
}

// Output is the build output directory, falling back to <WorkDir>/Mods.
func (c App) Output() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.WorkDir, "Mods")
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if !strings.HasPrefix(c.PyroServer, "http://") && !strings.HasPrefix(c.PyroServer, "https://") {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must start with http:// or https:// (got %q)", c.PyroServer))
		}
	}

	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	if c.WorkDir == "" {
		errs = append(errs, fmt.Errorf("WORK_DIR is required"))
	}
	if c.FrameRate < 0 {
		errs = append(errs, fmt.Errorf("invalid FRAME_RATE %g (must be >= 0)", c.FrameRate))
	}
	if c.ModName != "" && strings.ContainsAny(c.ModName, `/\`) {
		errs = append(errs, fmt.Errorf("MOD_NAME must be a bare name (got %q)", c.ModName))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateBuild adds the checks only the build command needs.
func ValidateBuild(c App) error {
	var errs []error
	if c.ModName == "" {
		errs = append(errs, fmt.Errorf("MOD_NAME is required"))
	}
	if c.BuildTarget == "" {
		errs = append(errs, fmt.Errorf("BUILD_TARGET is required"))
	}
	return errors.Join(errs...)
}

// ValidateRemote checks the release channel settings used by publish and fetch.
func ValidateRemote(c App) error {
	var errs []error
	if c.SSMParam == "" {
		errs = append(errs, fmt.Errorf("SSM_PARAM is required"))
	}
	if c.S3Bucket == "" {
		errs = append(errs, fmt.Errorf("S3_BUCKET is required"))
	}
	if c.S3Prefix == "" {
		errs = append(errs, fmt.Errorf("S3_PREFIX is required"))
	}
	return errors.Join(errs...)
}
