// Package config holds the process-wide settings for the TimeForged MCP
// adapter.
//
// A Config is built exactly once at process entry (defaults, then an
// optional YAML file, then environment, then flags) and handed to the
// constructors that need it. Nothing in this module reads the environment
// after startup.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultServerURL is where a local TimeForged daemon listens by default.
const DefaultServerURL = "http://127.0.0.1:6175"

// Environment variables read by [FromEnv].
const (
	EnvConfigFile  = "TF_CONFIG"
	EnvServerURL   = "TF_SERVER_URL"
	EnvAPIKey      = "TF_API_KEY"
	EnvLogLevel    = "TF_LOG_LEVEL"
	EnvMetricsAddr = "TF_METRICS_ADDR"
	EnvTrace       = "TF_TRACE"
)

// LogLevel is the minimum level written to stderr.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the known levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// SlogLevel maps l onto the slog level scale. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the adapter configuration. Treat it as immutable once built.
type Config struct {
	// ServerURL is the TimeForged base URL. Request paths are appended to it
	// verbatim.
	ServerURL string `yaml:"server_url"`

	// APIKey is sent as X-Api-Key when non-empty.
	APIKey string `yaml:"api_key"`

	LogLevel  LogLevel `yaml:"log_level"`
	LogFormat string   `yaml:"log_format"` // text | json

	// MetricsAddr enables the /health and /metrics side listener when set,
	// e.g. "127.0.0.1:9464".
	MetricsAddr string `yaml:"metrics_addr"`

	// Trace exports finished spans to stderr as JSON.
	Trace bool `yaml:"trace"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		ServerURL: DefaultServerURL,
		LogLevel:  LogLevelInfo,
		LogFormat: "text",
	}
}

// Load starts from [DefaultConfig], overlays the YAML file at path (when
// path is non-empty), then the environment, then each overlay in order,
// and validates the result. Overlays carry higher-precedence sources such
// as command-line flags.
func Load(path string, overlays ...func(*Config)) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decodeInto(&cfg, f); err != nil {
			return cfg, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	cfg = FromEnv(cfg, os.Getenv)
	for _, overlay := range overlays {
		overlay(&cfg)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of the defaults and validates
// the result. The environment is not consulted.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := decodeInto(&cfg, r); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeInto(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// FromEnv overlays non-empty environment values onto cfg. getenv is
// usually os.Getenv.
func FromEnv(cfg Config, getenv func(string) string) Config {
	if v := getenv(EnvServerURL); v != "" {
		cfg.ServerURL = v
	}
	if v := getenv(EnvAPIKey); v != "" {
		cfg.APIKey = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = LogLevel(v)
	}
	if v := getenv(EnvMetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}
	if v, err := strconv.ParseBool(getenv(EnvTrace)); err == nil {
		cfg.Trace = v
	}
	return cfg
}

// Validate checks that cfg is usable. All problems are reported together.
func Validate(cfg Config) error {
	var errs []error

	u, err := url.Parse(cfg.ServerURL)
	switch {
	case cfg.ServerURL == "":
		errs = append(errs, errors.New("server_url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("server_url %q is invalid: %w", cfg.ServerURL, err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("server_url %q must use http or https", cfg.ServerURL))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("server_url %q has no host", cfg.ServerURL))
	}

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.LogFormat != "" && cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is invalid; valid values: text, json", cfg.LogFormat))
	}

	return errors.Join(errs...)
}

// WarnMissingKey logs the one-time startup warning for an unauthenticated
// setup. It reports whether the warning was emitted.
func WarnMissingKey(cfg Config, logger *slog.Logger) bool {
	if cfg.APIKey != "" {
		return false
	}
	logger.Warn(EnvAPIKey + " not set. Requests will be sent without authentication.")
	return true
}
