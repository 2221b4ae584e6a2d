package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHost           = "0.0.0.0"
	DefaultHTTPPort       = 8000
	DefaultGRPCPort       = 50051
	DefaultRetention      = time.Hour
	DefaultSweepInterval  = time.Minute
	DefaultStreamInterval = 5 * time.Second
	DefaultLogLevel       = "info"
)

// Environment variables read by Load. They override the file.
const (
	EnvHost          = "DRIFTLOG_HOST"
	EnvHTTPPort      = "DRIFTLOG_HTTP_PORT"
	EnvGRPCPort      = "DRIFTLOG_GRPC_PORT"
	EnvRetention     = "DRIFTLOG_RETENTION"
	EnvSweepInterval = "DRIFTLOG_SWEEP_INTERVAL"
	EnvLogLevel      = "DRIFTLOG_LOG_LEVEL"
	EnvAuthMode      = "DRIFTLOG_AUTH_MODE"
	EnvAuthKeyEnv    = "DRIFTLOG_AUTH_KEY_ENV"
)

// Config holds the server configuration parsed from the `server:` section of
// the config file.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// Host is the interface both listeners bind to (default 0.0.0.0).
	Host string `yaml:"host"`

	// HTTPPort is the port for the REST API and live tail (default 8000).
	HTTPPort int `yaml:"http_port"`

	// GRPCPort is the port for the gRPC LogService (default 50051). 0 disables it.
	GRPCPort int `yaml:"grpc_port"`

	// LogLevel is one of debug | info | warn | error. Reloaded on file change.
	LogLevel string `yaml:"log_level"`

	Auth      AuthConfig      `yaml:"auth"`
	Retention RetentionConfig `yaml:"retention"`
	Stream    StreamConfig    `yaml:"stream"`
}

// AuthConfig controls client authentication for both transports.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header / gRPC metadata key carrying the key.
	// Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return strings.ToLower(a.Header)
	}
	return "x-api-key"
}

// RetentionConfig controls record expiration. Fixed at startup.
type RetentionConfig struct {
	// Window is the maximum record age (default 1h).
	Window time.Duration `yaml:"window"`

	// SweepInterval is the time between expiration sweeps (default 1m).
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// StreamConfig controls the WebSocket live tail.
type StreamConfig struct {
	// Interval is the heartbeat period for "stats" events (default 5s).
	Interval time.Duration `yaml:"interval"`
}

// HTTPAddr returns host:port for the HTTP listener.
func (s ServerConfig) HTTPAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort) }

// GRPCAddr returns host:port for the gRPC listener.
func (s ServerConfig) GRPCAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

// Level parses LogLevel into a slog.Level.
func (s ServerConfig) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and DRIFTLOG_* environment variables, in that order of
// increasing precedence, then validates it.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("server config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("server config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     DefaultHost,
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			LogLevel: DefaultLogLevel,
			Retention: RetentionConfig{
				Window:        DefaultRetention,
				SweepInterval: DefaultSweepInterval,
			},
			Stream: StreamConfig{
				Interval: DefaultStreamInterval,
			},
		},
	}
}

func applyEnv(cfg *Config) error {
	s := &cfg.Server
	if v, ok := os.LookupEnv(EnvHost); ok {
		s.Host = v
	}
	if err := envInt(EnvHTTPPort, &s.HTTPPort); err != nil {
		return err
	}
	if err := envInt(EnvGRPCPort, &s.GRPCPort); err != nil {
		return err
	}
	if err := envDuration(EnvRetention, &s.Retention.Window); err != nil {
		return err
	}
	if err := envDuration(EnvSweepInterval, &s.Retention.SweepInterval); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		s.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvAuthMode); ok {
		s.Auth.Mode = v
	}
	if v, ok := os.LookupEnv(EnvAuthKeyEnv); ok {
		s.Auth.KeyEnv = v
	}
	return nil
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

// Validate checks structural constraints on cfg. It is exported so callers
// that override fields after Load (command-line flags) can re-check.
func Validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	if s.GRPCPort != 0 && s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ (both %d)", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Auth.Mode == "apikey" && s.Auth.KeyEnv == "" {
		return fmt.Errorf("server.auth.key_env is required when auth.mode is apikey")
	}
	if s.Retention.Window <= 0 {
		return fmt.Errorf("server.retention.window must be positive")
	}
	if s.Retention.SweepInterval <= 0 {
		return fmt.Errorf("server.retention.sweep_interval must be positive")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	return nil
}
