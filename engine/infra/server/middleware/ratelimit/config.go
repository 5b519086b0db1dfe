package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/ulule/limiter/v3"
)

// Config represents rate limiting configuration.
type Config struct {
	// Rate uses the formatted syntax of ulule/limiter, e.g. "60-M".
	Rate string
	// Prefix namespaces counters in the store.
	Prefix string
	// MaxRetry bounds optimistic retries of the Redis store.
	MaxRetry int
	// CleanUpInterval evicts expired counters of the memory store.
	CleanUpInterval time.Duration
	DisableHeaders  bool
	ExcludedPaths   []string
	ExcludedIPs     []string
}

// DefaultConfig returns default rate limiting configuration.
func DefaultConfig() *Config {
	return &Config{
		Rate:            "60-M",
		Prefix:          "vachanamrut:ratelimit:",
		MaxRetry:        3,
		CleanUpInterval: time.Minute,
	}
}

// LimiterRate parses Rate.
func (c *Config) LimiterRate() (limiter.Rate, error) {
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(c.Rate))
	if err != nil {
		return limiter.Rate{}, fmt.Errorf("invalid rate %q: %w", c.Rate, err)
	}
	return rate, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	rate, err := c.LimiterRate()
	if err != nil {
		return err
	}
	if rate.Limit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

func (c *Config) excluded(path, ip string) bool {
	for _, p := range c.ExcludedPaths {
		if path == p {
			return true
		}
	}
	for _, excludedIP := range c.ExcludedIPs {
		if ip == excludedIP {
			return true
		}
	}
	return false
}
