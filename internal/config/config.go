package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/playground/internal/session"
)

// EnvPrefix is prepended to every environment override, e.g. PLAYGROUND_SERVER_ADDRESS
const EnvPrefix = "PLAYGROUND"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Compiler CompilerConfig `mapstructure:"compiler"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	BaseURL  string         `mapstructure:"base_url"`
	// Fragment seeds the session, as if the page had been opened with it
	Fragment string `mapstructure:"fragment"`
	Debug    bool   `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	CORSOrigins     string        `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BodyLimit       int           `mapstructure:"body_limit"`

	// Per-IP limit on stateless compile and analysis requests. 0 disables.
	CompileRateLimit  int           `mapstructure:"compile_rate_limit"`
	CompileRateWindow time.Duration `mapstructure:"compile_rate_window"`
}

// PipelineConfig contains the reactive pipeline settings
type PipelineConfig struct {
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
	RootDir        string        `mapstructure:"root_dir"`
	InputPath      string        `mapstructure:"input_path"`
	Entry          string        `mapstructure:"entry"`
	Bundle         bool          `mapstructure:"bundle"`
}

// CompilerConfig selects the optimizer implementation
type CompilerConfig struct {
	Provider       string        `mapstructure:"provider"` // esbuild or process
	ProcessPath    string        `mapstructure:"process_path"`
	ProcessArgs    []string      `mapstructure:"process_args"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

// RealtimeConfig contains websocket settings
type RealtimeConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxConnections   int           `mapstructure:"max_connections"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	WriteBufferSize  int           `mapstructure:"write_buffer_size"`
	ReadBufferSize   int           `mapstructure:"read_buffer_size"`
	MessageSizeLimit int64         `mapstructure:"message_size_limit"`
	SendBufferSize   int           `mapstructure:"send_buffer_size"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
}

// PubSubConfig contains the snapshot fan-out settings
type PubSubConfig struct {
	Backend    string `mapstructure:"backend"` // local
	BufferSize int    `mapstructure:"buffer_size"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := newViper()
	v.SetConfigName("playground")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/playground")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	return decode(v)
}

// newViper returns a viper instance with defaults and environment overrides
func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
		"../.env", // For when running from subdirectories
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.body_limit", 4*1024*1024) // 4MB
	v.SetDefault("server.compile_rate_limit", 30)
	v.SetDefault("server.compile_rate_window", "1m")

	// Pipeline defaults
	v.SetDefault("pipeline.debounce_window", "200ms")
	v.SetDefault("pipeline.root_dir", "/internal/project")
	v.SetDefault("pipeline.input_path", "input.tsx")
	v.SetDefault("pipeline.entry", "input.js")
	v.SetDefault("pipeline.bundle", true)

	// Compiler defaults
	v.SetDefault("compiler.provider", "esbuild")
	v.SetDefault("compiler.process_path", "")
	v.SetDefault("compiler.process_args", []string{})
	v.SetDefault("compiler.process_timeout", "30s")

	// Realtime defaults
	v.SetDefault("realtime.enabled", true)
	v.SetDefault("realtime.max_connections", 100)
	v.SetDefault("realtime.ping_interval", "30s")
	v.SetDefault("realtime.write_buffer_size", 4096)
	v.SetDefault("realtime.read_buffer_size", 4096)
	v.SetDefault("realtime.message_size_limit", 1024*1024) // 1MB
	v.SetDefault("realtime.send_buffer_size", 16)
	v.SetDefault("realtime.write_timeout", "10s")

	// PubSub defaults
	v.SetDefault("pubsub.backend", "local")
	v.SetDefault("pubsub.buffer_size", 16)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "playground")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// General defaults
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("fragment", "")
	v.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline configuration error: %w", err)
	}
	if err := c.Compiler.Validate(); err != nil {
		return fmt.Errorf("compiler configuration error: %w", err)
	}
	if err := c.Realtime.Validate(); err != nil {
		return fmt.Errorf("realtime configuration error: %w", err)
	}
	if err := c.PubSub.Validate(); err != nil {
		return fmt.Errorf("pubsub configuration error: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing configuration error: %w", err)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/'")
	}

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base_url must be an absolute URL")
		}
	}

	if c.Fragment != "" && !strings.HasPrefix(c.Fragment, session.FragmentPrefix) {
		return fmt.Errorf("fragment must start with %q", session.FragmentPrefix)
	}

	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive")
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive")
	}
	if sc.CompileRateLimit < 0 {
		return fmt.Errorf("compile_rate_limit cannot be negative")
	}
	if sc.CompileRateLimit > 0 && sc.CompileRateWindow <= 0 {
		return fmt.Errorf("compile_rate_window must be positive when compile_rate_limit is set")
	}
	return nil
}

// Validate validates pipeline configuration
func (pc *PipelineConfig) Validate() error {
	if pc.DebounceWindow < 0 {
		return fmt.Errorf("debounce_window cannot be negative")
	}
	if !strings.HasPrefix(pc.RootDir, "/") {
		return fmt.Errorf("root_dir must be absolute")
	}
	if pc.InputPath == "" {
		return fmt.Errorf("input_path cannot be empty")
	}
	if pc.Entry == "" {
		return fmt.Errorf("entry cannot be empty")
	}
	return nil
}

// Validate validates compiler configuration
func (cc *CompilerConfig) Validate() error {
	switch cc.Provider {
	case "esbuild":
	case "process":
		if cc.ProcessPath == "" {
			return fmt.Errorf("process_path is required when using the process provider")
		}
	default:
		return fmt.Errorf("compiler provider must be 'esbuild' or 'process'")
	}
	if cc.ProcessTimeout < 0 {
		return fmt.Errorf("process_timeout cannot be negative")
	}
	return nil
}

// Validate validates realtime configuration
func (rc *RealtimeConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}
	if rc.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive")
	}
	if rc.PingInterval <= 0 {
		return fmt.Errorf("ping_interval must be positive")
	}
	if rc.MessageSizeLimit <= 0 {
		return fmt.Errorf("message_size_limit must be positive")
	}
	if rc.SendBufferSize <= 0 {
		return fmt.Errorf("send_buffer_size must be positive")
	}
	if rc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	return nil
}

// Validate validates pub/sub configuration
func (pc *PubSubConfig) Validate() error {
	if pc.Backend != "" && pc.Backend != "local" {
		return fmt.Errorf("pubsub backend must be 'local'")
	}
	if pc.BufferSize < 0 {
		return fmt.Errorf("buffer_size cannot be negative")
	}
	return nil
}

// Validate validates tracing configuration
func (tc *TracingConfig) Validate() error {
	if !tc.Enabled {
		return nil
	}
	if tc.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0")
	}
	return nil
}
