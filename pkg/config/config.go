package config

import (
	"context"
	"time"
)

// Config represents the complete configuration for the Briefcase task monitor.
type Config struct {
	API     APIConfig     `koanf:"api"     validate:"required"`
	Monitor MonitorConfig `koanf:"monitor" validate:"required"`
	Retry   RetryConfig   `koanf:"retry"   validate:"required"`
	Bus     BusConfig     `koanf:"bus"`
	Runtime RuntimeConfig `koanf:"runtime" validate:"required"`
}

// APIConfig contains the Briefcase HTTP API connection settings.
type APIConfig struct {
	BaseURL    string          `koanf:"base_url"    validate:"required,url" env:"BRIEFCASE_BASE_URL"`
	Token      SensitiveString `koanf:"token"                               env:"BRIEFCASE_TOKEN"       sensitive:"true"`
	Timeout    time.Duration   `koanf:"timeout"     validate:"min=0"        env:"BRIEFCASE_TIMEOUT"`
	RetryCount int             `koanf:"retry_count" validate:"min=0,max=10" env:"BRIEFCASE_RETRY_COUNT"`
}

// MonitorConfig tunes the task execution monitor.
type MonitorConfig struct {
	PollInterval       time.Duration `koanf:"poll_interval"        validate:"required" env:"MONITOR_POLL_INTERVAL"`
	PollTimeout        time.Duration `koanf:"poll_timeout"         validate:"required" env:"MONITOR_POLL_TIMEOUT"`
	RecentLimit        int           `koanf:"recent_limit"         validate:"min=1"    env:"MONITOR_RECENT_LIMIT"`
	StallCheckInterval time.Duration `koanf:"stall_check_interval" validate:"required" env:"MONITOR_STALL_CHECK_INTERVAL"`
	StallThreshold     time.Duration `koanf:"stall_threshold"      validate:"required" env:"MONITOR_STALL_THRESHOLD"`
	EventBufferSize    int           `koanf:"event_buffer_size"    validate:"min=1,max=100" env:"MONITOR_EVENT_BUFFER_SIZE"`
	MinGoalLength      int           `koanf:"min_goal_length"      validate:"min=10"        env:"MONITOR_MIN_GOAL_LENGTH"`
	FeedbackCacheSize  int           `koanf:"feedback_cache_size"  validate:"min=1"    env:"MONITOR_FEEDBACK_CACHE_SIZE"`
	Stream             StreamConfig  `koanf:"stream"`
}

// StreamConfig controls the push stream reconnect policy.
type StreamConfig struct {
	MaxAttempts int           `koanf:"max_attempts" validate:"min=0"    env:"MONITOR_STREAM_MAX_ATTEMPTS"`
	BaseDelay   time.Duration `koanf:"base_delay"   validate:"required" env:"MONITOR_STREAM_BASE_DELAY"`
	MaxDelay    time.Duration `koanf:"max_delay"    validate:"required" env:"MONITOR_STREAM_MAX_DELAY"`
}

// RetryConfig controls resubmission of failed start requests.
type RetryConfig struct {
	MaxRetries int           `koanf:"max_retries" validate:"min=0"    env:"RETRY_MAX_RETRIES"`
	BaseDelay  time.Duration `koanf:"base_delay"  validate:"required" env:"RETRY_BASE_DELAY"`
	Auto       bool          `koanf:"auto"                            env:"RETRY_AUTO"`
}

// BusConfig selects the provider used for cross-component broadcasts.
type BusConfig struct {
	Driver        string `koanf:"driver"         validate:"oneof=memory redis" env:"BUS_DRIVER"`
	RedisURL      string `koanf:"redis_url"      validate:"omitempty,redis_url" env:"BUS_REDIS_URL"`
	ChannelPrefix string `koanf:"channel_prefix"                               env:"BUS_CHANNEL_PREFIX"`
}

// RuntimeConfig contains process-level settings.
type RuntimeConfig struct {
	Environment string `koanf:"environment"  validate:"oneof=development staging production" env:"RUNTIME_ENVIRONMENT"`
	LogLevel    string `koanf:"log_level"    validate:"oneof=debug info warn error disabled" env:"RUNTIME_LOG_LEVEL"`
	LogJSON     bool   `koanf:"log_json"                                                      env:"RUNTIME_LOG_JSON"`
	MetricsAddr string `koanf:"metrics_addr"                                                  env:"RUNTIME_METRICS_ADDR"`
}

// SensitiveString hides its value when printed or marshaled.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s SensitiveString) Value() string {
	return string(s)
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Service defines the configuration loading service.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type that provided a configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Load loads configuration using the default service.
func Load() (*Config, error) {
	return NewService().Load(context.Background())
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "http://localhost:8080",
			Timeout:    30 * time.Second,
			RetryCount: 2,
		},
		Monitor: MonitorConfig{
			PollInterval:       3 * time.Second,
			PollTimeout:        2500 * time.Millisecond,
			RecentLimit:        5,
			StallCheckInterval: 10 * time.Second,
			StallThreshold:     2 * time.Minute,
			EventBufferSize:    100,
			MinGoalLength:      10,
			FeedbackCacheSize:  256,
			Stream: StreamConfig{
				MaxAttempts: 5,
				BaseDelay:   time.Second,
				MaxDelay:    30 * time.Second,
			},
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			Auto:       true,
		},
		Bus: BusConfig{
			Driver:        "memory",
			ChannelPrefix: "briefcase",
		},
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
	}
}
