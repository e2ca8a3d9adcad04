package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aescanero/factllm/pkg/adapters/llm"
	"github.com/aescanero/factllm/pkg/adapters/llm/anthropic"
	"github.com/aescanero/factllm/pkg/adapters/llm/local"
	"github.com/aescanero/factllm/pkg/adapters/llm/openai"
	"github.com/aescanero/factllm/pkg/domain"
	"github.com/caarlos0/env/v10"
)

// Backend names for the pluggable infrastructure
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration for factllm
type Config struct {
	// Server configuration
	HTTPPort int    `env:"FACTLLM_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"FACTLLM_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Backends
	RateLimitBackend string `env:"RATELIMIT_BACKEND" envDefault:"memory"`
	StorageBackend   string `env:"STORAGE_BACKEND" envDefault:"memory"`
	EventsBackend    string `env:"EVENTS_BACKEND" envDefault:"memory"`

	// Redis configuration
	Redis RedisConfig

	// LLM configuration
	LLM LLMConfig

	// Run configuration
	Runs RunConfig

	// Worker configuration
	Workers WorkerConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"local"`
	Model    string `env:"LLM_MODEL"`
	APIKey   string `env:"LLM_API_KEY"`
	APIURL   string `env:"LLM_API_URL"`

	// Local server credentials; LLM_API_KEY and LLM_API_URL are used when unset
	LocalAPIKey string `env:"LOCAL_API_KEY"`
	LocalAPIURL string `env:"LOCAL_API_URL"`

	// Rate limiting
	MaxRequestsPerMinute int           `env:"LLM_MAX_REQUESTS_PER_MINUTE" envDefault:"200"`
	RequestWindow        int           `env:"LLM_REQUEST_WINDOW" envDefault:"60"`
	RequestTimeout       time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`
	CostPolicy           string        `env:"LLM_COST_POLICY" envDefault:"call"`

	// Call defaults
	SystemRole  string `env:"LLM_SYSTEM_ROLE" envDefault:"You are a helpful assistant designed to output JSON."`
	DefaultSeed int64  `env:"LLM_DEFAULT_SEED" envDefault:"42"`
}

// RunConfig holds asynchronous run configuration
type RunConfig struct {
	MaxPrompts int           `env:"RUN_MAX_PROMPTS" envDefault:"1000"`
	TTL        time.Duration `env:"RUN_TTL" envDefault:"24h"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"2"`
	Concurrency         int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	RunExecutionTimeout time.Duration `env:"TIMEOUT_RUN_EXECUTION" envDefault:"1h"`
	ShutdownTimeout     time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment.
func LoadFrom(environment map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid. Problems are reported as
// *domain.ConfigError.
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return &domain.ConfigError{Field: "FACTLLM_HTTP_PORT", Reason: fmt.Sprintf("invalid port %d", c.HTTPPort)}
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return &domain.ConfigError{Field: "FACTLLM_GRPC_PORT", Reason: fmt.Sprintf("invalid port %d", c.GRPCPort)}
	}

	// Validate backends
	for field, backend := range map[string]string{
		"RATELIMIT_BACKEND": c.RateLimitBackend,
		"STORAGE_BACKEND":   c.StorageBackend,
		"EVENTS_BACKEND":    c.EventsBackend,
	} {
		if backend != BackendMemory && backend != BackendRedis {
			return &domain.ConfigError{Field: field, Reason: fmt.Sprintf("unknown backend %q (must be memory or redis)", backend)}
		}
	}
	// Workers in other processes must be able to load the runs they receive
	if c.EventsBackend == BackendRedis && c.StorageBackend != BackendRedis {
		return &domain.ConfigError{Field: "STORAGE_BACKEND", Reason: "redis events require redis storage"}
	}
	if c.UsesRedis() && c.Redis.Addr == "" {
		return &domain.ConfigError{Field: "REDIS_ADDR", Reason: "redis address is required"}
	}

	// Validate LLM config; the adapter factory checks provider specific keys
	cc := c.ClientConfig()
	if !slices.Contains(llm.Providers, cc.Provider) {
		return &domain.ConfigError{Field: "LLM_PROVIDER", Reason: fmt.Sprintf("unsupported LLM provider %q (supported: %v)", cc.Provider, llm.Providers)}
	}
	if err := cc.Validate(); err != nil {
		return err
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return &domain.ConfigError{Field: "WORKER_POOL_SIZE", Reason: "worker pool size must be at least 1"}
	}
	if c.Workers.Concurrency < 1 {
		return &domain.ConfigError{Field: "WORKER_CONCURRENCY", Reason: "worker concurrency must be at least 1"}
	}
	if c.Runs.MaxPrompts < 1 {
		return &domain.ConfigError{Field: "RUN_MAX_PROMPTS", Reason: "must be at least 1"}
	}
	if c.Timeouts.RunExecutionTimeout <= 0 {
		return &domain.ConfigError{Field: "TIMEOUT_RUN_EXECUTION", Reason: "must be positive"}
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return &domain.ConfigError{Field: "LOG_LEVEL", Reason: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", c.LogLevel)}
	}

	return nil
}

// UsesRedis reports whether any backend needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.RateLimitBackend == BackendRedis ||
		c.StorageBackend == BackendRedis ||
		c.EventsBackend == BackendRedis
}

// ClientConfig builds the adapter configuration, resolving the generic
// LLM_API_KEY and LLM_API_URL variables into the provider's own keys.
func (c *Config) ClientConfig() domain.ClientConfig {
	provider := strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	apiConfig := make(map[string]string)

	switch provider {
	case domain.ProviderOpenAI:
		setIfNotEmpty(apiConfig, openai.KeyAPIKey, c.LLM.APIKey)
		setIfNotEmpty(apiConfig, openai.KeyBaseURL, c.LLM.APIURL)
	case domain.ProviderAnthropic:
		setIfNotEmpty(apiConfig, anthropic.KeyAPIKey, c.LLM.APIKey)
		setIfNotEmpty(apiConfig, anthropic.KeyBaseURL, c.LLM.APIURL)
	case domain.ProviderLocal:
		setIfNotEmpty(apiConfig, local.KeyAPIKey, firstNonEmpty(c.LLM.LocalAPIKey, c.LLM.APIKey))
		setIfNotEmpty(apiConfig, local.KeyAPIURL, firstNonEmpty(c.LLM.LocalAPIURL, c.LLM.APIURL))
	}

	return domain.ClientConfig{
		Provider:             provider,
		Model:                c.LLM.Model,
		APIConfig:            apiConfig,
		MaxRequestsPerMinute: c.LLM.MaxRequestsPerMinute,
		RequestWindow:        c.LLM.RequestWindow,
		RequestTimeout:       c.LLM.RequestTimeout,
		CostPolicy:           domain.CostPolicy(c.LLM.CostPolicy),
	}.WithDefaults()
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

func setIfNotEmpty(m map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		m[key] = v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
