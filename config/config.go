// Package config loads npmsentinel settings from YAML, .env, and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/petal-labs/npmsentinel/upstream"
)

const (
	projectConfigName = "npmsentinel.yaml"
	homeConfigDir     = ".npmsentinel"
	homeConfigName    = "config.yaml"

	defaultTimeout        = 30 * time.Second
	defaultItemTimeout    = 20 * time.Second
	defaultHealthSchedule = "@every 10m"
	defaultServiceName    = "npmsentinel"
)

// Environment variables that override file settings.
const (
	EnvGitHubToken  = "GITHUB_TOKEN"
	EnvLogLevel     = "NPMSENTINEL_LOG_LEVEL"
	EnvHTTPTimeout  = "NPMSENTINEL_HTTP_TIMEOUT"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// Config is the complete runtime configuration.
type Config struct {
	Endpoints upstream.Endpoints `yaml:"endpoints"`
	HTTP      HTTPConfig         `yaml:"http"`
	GitHub    GitHubConfig       `yaml:"github"`
	Log       LogConfig          `yaml:"log"`
	Health    HealthConfig       `yaml:"health"`
	Telemetry TelemetryConfig    `yaml:"telemetry"`

	// Path is the file the config was read from; empty when none was found.
	Path string `yaml:"-"`
}

// HTTPConfig tunes outbound requests.
type HTTPConfig struct {
	Timeout     Duration `yaml:"timeout"`
	ItemTimeout Duration `yaml:"item_timeout"`
	UserAgent   string   `yaml:"user_agent,omitempty"`
}

// GitHubConfig holds the optional GitHub token.
type GitHubConfig struct {
	Token string `yaml:"token,omitempty"`
}

// LogConfig selects log level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HealthConfig schedules background upstream probes. An empty schedule
// disables them.
type HealthConfig struct {
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	ServiceName  string `yaml:"service_name"`
}

// Duration is a time.Duration that reads and writes as "30s" in YAML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML accepts Go duration strings.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Endpoints: upstream.DefaultEndpoints(),
		HTTP: HTTPConfig{
			Timeout:     Duration(defaultTimeout),
			ItemTimeout: Duration(defaultItemTimeout),
		},
		Log:       LogConfig{Level: "info", Format: "text"},
		Health:    HealthConfig{Schedule: defaultHealthSchedule},
		Telemetry: TelemetryConfig{ServiceName: defaultServiceName},
	}
}

// Options locates config sources. Zero values use the process environment.
type Options struct {
	// ExplicitPath must exist when set.
	ExplicitPath string
	Cwd          string
	HomeDir      string
	// SkipDotEnv disables loading .env from Cwd.
	SkipDotEnv bool
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Load reads configuration for the current process.
func Load(explicitPath string) (Config, error) {
	return LoadWith(Options{ExplicitPath: explicitPath})
}

// LoadWith reads configuration: .env, then the discovered YAML file, then
// environment overrides, then defaults and validation.
func LoadWith(opts Options) (Config, error) {
	if opts.Cwd == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve working directory: %w", err)
		}
		opts.Cwd = cwd
	}
	if opts.HomeDir == "" {
		// A missing home directory only disables the home config candidate.
		opts.HomeDir, _ = os.UserHomeDir()
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	if !opts.SkipDotEnv {
		if err := loadDotEnv(filepath.Join(opts.Cwd, ".env")); err != nil {
			return Config{}, err
		}
	}

	cfg := Default()
	path, found, err := DiscoverPath(opts.ExplicitPath, opts.Cwd, opts.HomeDir)
	if err != nil {
		return Config{}, err
	}
	if found {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
		cfg.Path = path
	}

	if err := cfg.applyEnv(opts.Getenv); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadDotEnv loads KEY=VALUE pairs without overriding variables already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: checking %q: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: loading %q: %w", path, err)
	}
	return nil
}

// DiscoverPath resolves the config file with first-match semantics:
// explicit path, ./npmsentinel.yaml, ~/.npmsentinel/config.yaml.
func DiscoverPath(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	explicit := strings.TrimSpace(explicitPath) != ""
	if explicit {
		candidates = append(candidates, filepath.Clean(strings.TrimSpace(explicitPath)))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		if homeDir != "" {
			candidates = append(candidates, filepath.Join(homeDir, homeConfigDir, homeConfigName))
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if explicit {
				return "", false, fmt.Errorf("config: file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("config: checking %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

func readFile(path string, cfg *Config) error {
	// #nosec G304 -- path comes from local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvGitHubToken)); v != "" {
		c.GitHub.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.Log.Level = v
	}
	if v := strings.TrimSpace(getenv(EnvHTTPTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: invalid duration %q: %w", EnvHTTPTimeout, v, err)
		}
		c.HTTP.Timeout = Duration(d)
	}
	if v := strings.TrimSpace(getenv(EnvOTLPEndpoint)); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	defaults := Default()
	c.Endpoints = c.Endpoints.WithDefaults()
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = defaults.HTTP.Timeout
	}
	if c.HTTP.ItemTimeout == 0 {
		c.HTTP.ItemTimeout = defaults.HTTP.ItemTimeout
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	c.Health.Schedule = strings.TrimSpace(c.Health.Schedule)
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := c.Endpoints.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("config: http.timeout must be positive")
	}
	if c.HTTP.ItemTimeout <= 0 {
		return errors.New("config: http.item_timeout must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format %q must be text or json", c.Log.Format)
	}
	if c.Health.Schedule != "" {
		if _, err := cron.ParseStandard(c.Health.Schedule); err != nil {
			return fmt.Errorf("config: health.schedule %q: %w", c.Health.Schedule, err)
		}
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.GitHub.Token != "" {
		c.GitHub.Token = "<redacted>"
	}
	return c
}

// UpstreamConfig converts c into an upstream client configuration.
func (c Config) UpstreamConfig() upstream.Config {
	return upstream.Config{
		Endpoints:   c.Endpoints,
		Timeout:     c.HTTP.Timeout.Std(),
		UserAgent:   c.HTTP.UserAgent,
		GitHubToken: c.GitHub.Token,
	}
}
