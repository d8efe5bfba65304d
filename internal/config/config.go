// Package config loads the rxflow command configuration from defaults, an
// optional YAML file and RXFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	rxerrors "github.com/vnykmshr/rxflow/pkg/common/errors"
	"github.com/vnykmshr/rxflow/pkg/common/validation"
	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

// EnvPrefix is the prefix of environment overrides, e.g. RXFLOW_API_BASE_URL
// for api.base_url.
const EnvPrefix = "RXFLOW"

// Backoff strategy names accepted by retry.backoff.
const (
	BackoffConstant    = "constant"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// Config represents the complete rxflow configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Search  SearchConfig  `mapstructure:"search"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Counter CounterConfig `mapstructure:"counter"`
	Cron    CronConfig    `mapstructure:"cron"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// APIConfig points the HTTP sources at a JSON API.
type APIConfig struct {
	// BaseURL is the root of the users/posts/products resources
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds each request (0 = no timeout)
	Timeout time.Duration `mapstructure:"timeout"`
	// UsersLimit is how many users the users scenario keeps
	UsersLimit int `mapstructure:"users_limit"`
}

// SearchConfig controls the type-ahead search pipeline
type SearchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// RetryConfig controls retries of the products request
type RetryConfig struct {
	// MaxAttempts counts the first attempt, so 4 means 3 retries
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
	// Backoff is one of "constant", "linear", "exponential"
	Backoff  string        `mapstructure:"backoff"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// CounterConfig controls the interval counter
type CounterConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// CronConfig controls the cron ticker
type CronConfig struct {
	// Schedule is a cron expression with an optional seconds field
	Schedule string `mapstructure:"schedule"`
	// Location is an IANA zone name or "Local"
	Location string `mapstructure:"location"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Format is "text" or "json"
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
	// OTel also reports to the global OpenTelemetry meter provider
	OTel bool `mapstructure:"otel"`
}

// RedisConfig points the watch scenario at a Redis server
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "https://jsonplaceholder.typicode.com",
			Timeout:    10 * time.Second,
			UsersLimit: 5,
		},
		Search: SearchConfig{
			Debounce: 400 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			Delay:       time.Second,
			Backoff:     BackoffConstant,
			MaxDelay:    30 * time.Second,
		},
		Counter: CounterConfig{
			Interval: time.Second,
		},
		Cron: CronConfig{
			Schedule: "*/5 * * * * *",
			Location: "Local",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Addr:      ":9090",
			Namespace: "rxflow",
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "rxflow:events",
		},
	}
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// API defaults
	v.SetDefault("api.base_url", defaults.API.BaseURL)
	v.SetDefault("api.timeout", defaults.API.Timeout)
	v.SetDefault("api.users_limit", defaults.API.UsersLimit)

	v.SetDefault("search.debounce", defaults.Search.Debounce)

	// Retry defaults
	v.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	v.SetDefault("retry.delay", defaults.Retry.Delay)
	v.SetDefault("retry.backoff", defaults.Retry.Backoff)
	v.SetDefault("retry.max_delay", defaults.Retry.MaxDelay)

	v.SetDefault("counter.interval", defaults.Counter.Interval)

	v.SetDefault("cron.schedule", defaults.Cron.Schedule)
	v.SetDefault("cron.location", defaults.Cron.Location)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	// Metrics defaults
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
	v.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
	v.SetDefault("metrics.otel", defaults.Metrics.OTel)

	// Redis defaults
	v.SetDefault("redis.addr", defaults.Redis.Addr)
	v.SetDefault("redis.password", defaults.Redis.Password)
	v.SetDefault("redis.db", defaults.Redis.DB)
	v.SetDefault("redis.channel", defaults.Redis.Channel)
}

// ConfigDir returns the directory searched for config.yaml when no file is
// given explicitly.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "rxflow")
	}
	return "."
}

// NewViper returns a viper instance with defaults and environment overrides
// registered, reading cfgFile if set or config.yaml from ConfigDir and the
// working directory otherwise. A missing default file is not an error.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	// e.g. RXFLOW_RETRY_MAX_ATTEMPTS for retry.max_attempts
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(ConfigDir())
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section and returns all problems joined.
func (c *Config) Validate() error {
	const module = "config"
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(validation.ValidateHTTPURL(module, "api.base_url", c.API.BaseURL))
	add(validation.ValidateNonNegativeDuration(module, "api.timeout", c.API.Timeout))
	add(validation.ValidatePositive(module, "api.users_limit", c.API.UsersLimit))

	add(validation.ValidateNonNegativeDuration(module, "search.debounce", c.Search.Debounce))

	add(validation.ValidatePositive(module, "retry.max_attempts", c.Retry.MaxAttempts))
	add(validation.ValidateNonNegativeDuration(module, "retry.delay", c.Retry.Delay))
	add(validation.ValidateOneOf(module, "retry.backoff", c.Retry.Backoff,
		BackoffConstant, BackoffLinear, BackoffExponential))
	add(validation.ValidateNonNegativeDuration(module, "retry.max_delay", c.Retry.MaxDelay))

	add(validation.ValidatePositiveDuration(module, "counter.interval", c.Counter.Interval))

	if _, err := scheduler.ParseCron(c.Cron.Schedule); err != nil {
		add(rxerrors.NewValidationError(module, "cron.schedule", c.Cron.Schedule, err.Error()).
			WithHint("for example \"*/5 * * * * *\" or \"@every 10s\""))
	}
	if _, err := c.Cron.TimeLocation(); err != nil {
		add(rxerrors.NewValidationError(module, "cron.location", c.Cron.Location, "unknown time zone").
			WithHint("use an IANA name such as Europe/Madrid, or Local"))
	}

	add(validation.ValidateOneOf(module, "logging.level", c.Logging.Level, "debug", "info", "warn", "error"))
	add(validation.ValidateOneOf(module, "logging.format", c.Logging.Format, "text", "json"))

	if c.Metrics.Enabled {
		add(validation.ValidateNotEmpty(module, "metrics.addr", c.Metrics.Addr))
	}

	add(validation.ValidateNotEmpty(module, "redis.addr", c.Redis.Addr))
	add(validation.ValidateNotEmpty(module, "redis.channel", c.Redis.Channel))

	return errors.Join(errs...)
}

// Strategy returns the backoff function named by Backoff.
func (r RetryConfig) Strategy() observable.Backoff {
	switch strings.ToLower(r.Backoff) {
	case BackoffLinear:
		return observable.LinearBackoff()
	case BackoffExponential:
		return observable.ExponentialBackoff(r.MaxDelay)
	default:
		return observable.ConstantBackoff()
	}
}

// TimeLocation resolves Location.
func (c CronConfig) TimeLocation() (*time.Location, error) {
	if c.Location == "" || strings.EqualFold(c.Location, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("cron.location %q: %w", c.Location, err)
	}
	return loc, nil
}
