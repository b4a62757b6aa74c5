// Package config provides configuration loading and validation for the
// krakenfeed client, following the teacher repo's viper-backed pattern.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Kraken    KrakenConfig    `mapstructure:"kraken"`
	Book      BookConfig      `mapstructure:"book"`
	Latency   LatencyConfig   `mapstructure:"latency"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// Credentials enables the Authenticating state and private channels when
// both fields are set. Zero value means "public only".
type Credentials struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// Enabled reports whether credentials were supplied.
func (c Credentials) Enabled() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// ReconnectConfig is the exponential backoff policy for the connection
// state machine.
type ReconnectConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// GapConfig controls the sequence tracker's gap-handling policy.
type GapConfig struct {
	Policy         string        `mapstructure:"policy"`          // Resync|Ignore|Buffer
	MaxGapSize     int           `mapstructure:"max_gap_size"`    // above this, resync regardless of policy
	PendingTimeout time.Duration `mapstructure:"pending_timeout"` // Buffer policy: how long to wait for the missing predecessor
}

// KrakenConfig holds the public/private websocket endpoint and transport
// tuning for the Kraken adapter.
type KrakenConfig struct {
	PublicURL          string          `mapstructure:"public_url"`
	PrivateURL         string          `mapstructure:"private_url"`
	Credentials        Credentials     `mapstructure:"credentials"`
	ConnectTimeout     time.Duration   `mapstructure:"connect_timeout"`
	HeartbeatInterval  time.Duration   `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout   time.Duration   `mapstructure:"heartbeat_timeout"`
	Reconnect          ReconnectConfig `mapstructure:"reconnect"`
	BufferSize         int             `mapstructure:"buffer_size"`
	QueueDepth         int             `mapstructure:"queue_depth"`
	DropPolicy         string          `mapstructure:"drop_policy"` // DropOldest|DropNewest|Coalesce|Block
	MaxMessagesPerSec  int             `mapstructure:"max_messages_per_second"`
	CoalesceWindowMs   int             `mapstructure:"coalesce_window_ms"`
	Gap                GapConfig       `mapstructure:"gap"`
	Pairs              []string        `mapstructure:"pairs"`
}

// BookConfig controls the order book engine.
type BookConfig struct {
	DepthCap          int           `mapstructure:"depth_cap"`
	RestFallbackAfter time.Duration `mapstructure:"rest_fallback_after"` // 0 disables the REST snapshot fallback
}

// LatencyConfig holds the alert thresholds for the latency tracker.
type LatencyConfig struct {
	NetworkThreshold time.Duration `mapstructure:"network_threshold"`
	TotalThreshold   time.Duration `mapstructure:"total_threshold"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("KRAKENFEED")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "KRAKENFEED_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "KRAKENFEED_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "KRAKENFEED_LOG_LEVEL", "LOG_LEVEL")

	v.BindEnv("kraken.public_url", "KRAKENFEED_PUBLIC_URL")
	v.BindEnv("kraken.private_url", "KRAKENFEED_PRIVATE_URL")
	v.BindEnv("kraken.credentials.api_key", "KRAKENFEED_API_KEY")
	v.BindEnv("kraken.credentials.api_secret", "KRAKENFEED_API_SECRET")
	v.BindEnv("kraken.pairs", "KRAKENFEED_PAIRS")

	v.BindEnv("telemetry.enabled", "KRAKENFEED_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "KRAKENFEED_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "KRAKENFEED_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "krakenfeed")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("kraken.public_url", "wss://ws.kraken.com")
	v.SetDefault("kraken.private_url", "wss://ws-auth.kraken.com")
	v.SetDefault("kraken.connect_timeout", "5s")
	v.SetDefault("kraken.heartbeat_interval", "30s")
	v.SetDefault("kraken.heartbeat_timeout", "30s")
	v.SetDefault("kraken.reconnect.initial_delay", "100ms")
	v.SetDefault("kraken.reconnect.max_delay", "30s")
	v.SetDefault("kraken.reconnect.multiplier", 2.0)
	v.SetDefault("kraken.reconnect.max_attempts", 10)
	v.SetDefault("kraken.buffer_size", 1024)
	v.SetDefault("kraken.queue_depth", 10000)
	v.SetDefault("kraken.drop_policy", "DropOldest")
	v.SetDefault("kraken.max_messages_per_second", 0)
	v.SetDefault("kraken.coalesce_window_ms", 10)
	v.SetDefault("kraken.gap.policy", "Resync")
	v.SetDefault("kraken.gap.max_gap_size", 10)
	v.SetDefault("kraken.gap.pending_timeout", "5s")
	v.SetDefault("kraken.pairs", []string{"BTC/USD"})

	v.SetDefault("book.depth_cap", 0) // 0 means "use subscription depth"
	v.SetDefault("book.rest_fallback_after", "0s")

	v.SetDefault("latency.network_threshold", "50ms")
	v.SetDefault("latency.total_threshold", "60ms")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "krakenfeed")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Kraken.PublicURL == "" {
		return fmt.Errorf("kraken.public_url is required")
	}
	if len(c.Kraken.Pairs) == 0 {
		return fmt.Errorf("kraken.pairs cannot be empty")
	}
	switch c.Kraken.DropPolicy {
	case "DropOldest", "DropNewest", "Coalesce", "Block":
	default:
		return fmt.Errorf("invalid kraken.drop_policy: %s", c.Kraken.DropPolicy)
	}
	switch c.Kraken.Gap.Policy {
	case "Resync", "Ignore", "Buffer":
	default:
		return fmt.Errorf("invalid kraken.gap.policy: %s", c.Kraken.Gap.Policy)
	}
	if c.Kraken.Reconnect.Multiplier <= 1.0 {
		return fmt.Errorf("kraken.reconnect.multiplier must be > 1.0")
	}
	return nil
}
