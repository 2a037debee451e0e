package core

import (
	"fmt"
	"strings"
	"time"
)

type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff" yaml:"max_backoff"`
	// DefaultRetryAfter applies to 429 responses without a Retry-After header.
	DefaultRetryAfter time.Duration `koanf:"default_retry_after" mapstructure:"default_retry_after" yaml:"default_retry_after"`
	// MaxRetryWait caps a single wait on a 429 or a closed rate limit window.
	// Longer waits fail the call instead of sleeping.
	MaxRetryWait time.Duration `koanf:"max_retry_wait" mapstructure:"max_retry_wait" yaml:"max_retry_wait"`
}

type RateLimitConfig struct {
	LowRemainingThreshold int `koanf:"low_remaining_threshold" mapstructure:"low_remaining_threshold" yaml:"low_remaining_threshold"`
}

type CacheConfig struct {
	Enabled bool          `koanf:"enabled" mapstructure:"enabled" yaml:"enabled"`
	TTL     time.Duration `koanf:"ttl" mapstructure:"ttl" yaml:"ttl"`
}

type Config struct {
	ServiceName    string          `koanf:"service_name" mapstructure:"service_name" yaml:"service_name"`
	UserAgent      string          `koanf:"user_agent" mapstructure:"user_agent" yaml:"user_agent"`
	RequestTimeout time.Duration   `koanf:"request_timeout" mapstructure:"request_timeout" yaml:"request_timeout"`
	Retry          RetryConfig     `koanf:"retry" mapstructure:"retry" yaml:"retry"`
	RateLimit      RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit" yaml:"rate_limit"`
	Cache          CacheConfig     `koanf:"cache" mapstructure:"cache" yaml:"cache"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "mastodon",
		UserAgent:      "go-mastodon",
		RequestTimeout: 30 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:       6,
			InitialBackoff:    3 * time.Second,
			MaxBackoff:        30 * time.Second,
			DefaultRetryAfter: 60 * time.Second,
			MaxRetryWait:      5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			LowRemainingThreshold: 50,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("core: request_timeout must be >= 0")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("core: retry.max_attempts must be >= 0")
	}
	if c.Retry.MaxBackoff > 0 && c.Retry.InitialBackoff > c.Retry.MaxBackoff {
		return fmt.Errorf("core: retry.initial_backoff must not exceed retry.max_backoff")
	}
	if c.Retry.MaxRetryWait < 0 {
		return fmt.Errorf("core: retry.max_retry_wait must be >= 0")
	}
	if c.RateLimit.LowRemainingThreshold < 0 {
		return fmt.Errorf("core: rate_limit.low_remaining_threshold must be >= 0")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("core: cache.ttl must be >= 0")
	}
	return nil
}
