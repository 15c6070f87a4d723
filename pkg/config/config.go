package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Gateway GatewayConfig `json:"gateway"`
	Logging LoggingConfig `json:"logging"`
	Metrics MetricsConfig `json:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// GatewayConfig contains defaults applied to targets that are registered
// without their own policies.
type GatewayConfig struct {
	DefaultTimeout time.Duration `json:"default_timeout"`

	// Retry defaults
	MaxRetries     int           `json:"max_retries"`
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
	RetryMaxDelay  time.Duration `json:"retry_max_delay"`

	// Circuit breaker defaults
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	BreakerCooldown  time.Duration `json:"breaker_cooldown"`

	// Rate limiter defaults
	RateLimitRequests  int           `json:"rate_limit_requests"`
	RateLimitWindow    time.Duration `json:"rate_limit_window"`
	RateLimitAlgorithm string        `json:"rate_limit_algorithm"`

	// Cache defaults
	CacheMaxEntries int           `json:"cache_max_entries"`
	CacheTTL        time.Duration `json:"cache_ttl"`

	// Sweep interval for proactive cache expiry
	CacheSweepInterval time.Duration `json:"cache_sweep_interval"`

	// AdaptersFile points at the JSON file describing the external systems
	// to register at startup. Empty means no adapters are preloaded.
	AdaptersFile string `json:"adapters_file"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Gateway: GatewayConfig{
			DefaultTimeout:     getEnvDuration("GATEWAY_DEFAULT_TIMEOUT", 30*time.Second),
			MaxRetries:         getEnvInt("GATEWAY_MAX_RETRIES", 3),
			RetryBaseDelay:     getEnvDuration("GATEWAY_RETRY_BASE_DELAY", time.Second),
			RetryMaxDelay:      getEnvDuration("GATEWAY_RETRY_MAX_DELAY", 30*time.Second),
			FailureThreshold:   getEnvInt("GATEWAY_FAILURE_THRESHOLD", 5),
			SuccessThreshold:   getEnvInt("GATEWAY_SUCCESS_THRESHOLD", 2),
			BreakerCooldown:    getEnvDuration("GATEWAY_BREAKER_COOLDOWN", 60*time.Second),
			RateLimitRequests:  getEnvInt("GATEWAY_RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:    getEnvDuration("GATEWAY_RATE_LIMIT_WINDOW", time.Minute),
			RateLimitAlgorithm: getEnvString("GATEWAY_RATE_LIMIT_ALGORITHM", "token_bucket"),
			CacheMaxEntries:    getEnvInt("GATEWAY_CACHE_MAX_ENTRIES", 1000),
			CacheTTL:           getEnvDuration("GATEWAY_CACHE_TTL", 5*time.Minute),
			CacheSweepInterval: getEnvDuration("GATEWAY_CACHE_SWEEP_INTERVAL", time.Minute),
			AdaptersFile:       getEnvString("GATEWAY_ADAPTERS_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
		Metrics: MetricsConfig{
			Namespace: getEnvString("METRICS_NAMESPACE", "baggw"),
			Enabled:   getEnvBool("METRICS_ENABLED", true),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Gateway.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}

	if c.Gateway.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be positive")
	}

	if c.Gateway.SuccessThreshold <= 0 {
		return fmt.Errorf("success threshold must be positive")
	}

	switch c.Gateway.RateLimitAlgorithm {
	case "token_bucket", "sliding_window":
	default:
		return fmt.Errorf("unknown rate limit algorithm: %s", c.Gateway.RateLimitAlgorithm)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
