// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package aiops

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"axonflow/aicore/aiops/breaker"
	"axonflow/aicore/aiops/cache"
	"axonflow/aicore/aiops/failover"
	"axonflow/aicore/aiops/monitor"
	"axonflow/aicore/aiops/selector"
)

// Config is the root configuration for the AI core service.
type Config struct {
	Version string `yaml:"version"`

	HTTP HTTPConfig `yaml:"http"`

	// Providers is the failover priority list, most preferred first.
	Providers []string `yaml:"providers"`

	Circuit CircuitConfig `yaml:"circuit"`
	Retry   RetryConfig   `yaml:"retry"`

	Models       []selector.ModelConfig          `yaml:"models"`
	Baseline     string                          `yaml:"baseline_model"`
	Requirements map[string]selector.Requirement `yaml:"requirements"`

	Cache   CacheSection  `yaml:"cache"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// HTTPConfig configures the ops API server.
type HTTPConfig struct {
	Port string `yaml:"port"`

	// AdminJWTSecret signs admin tokens for mutating endpoints.
	AdminJWTSecret string `yaml:"admin_jwt_secret"`
}

// CircuitConfig mirrors the breaker tuning knobs in file form.
type CircuitConfig struct {
	FailureThreshold   int `yaml:"failure_threshold"`
	SuccessThreshold   int `yaml:"success_threshold"`
	TimeoutMs          int `yaml:"timeout_ms"`
	MonitoringWindowMs int `yaml:"monitoring_window_ms"`
}

// RetryConfig mirrors the retry executor tuning knobs in file form.
type RetryConfig struct {
	MaxRetries      int     `yaml:"max_retries"`
	InitialDelayMs  int     `yaml:"initial_delay_ms"`
	MaxDelayMs      int     `yaml:"max_delay_ms"`
	ExponentialBase float64 `yaml:"exponential_base"`
}

// CacheSection holds the default cache policy and per-use-case overrides.
type CacheSection struct {
	Default  CacheConfig            `yaml:"default"`
	UseCases map[string]CacheConfig `yaml:"use_cases"`
}

// CacheConfig is one use case's cache policy in file form.
type CacheConfig struct {
	TTLMs      int  `yaml:"ttl_ms"`
	MaxEntries int  `yaml:"max_entries"`
	Enabled    bool `yaml:"enabled"`
}

// MonitorConfig holds the alerting thresholds in file form.
type MonitorConfig struct {
	DefaultLatencyThresholdMs float64            `yaml:"default_latency_threshold_ms"`
	LatencyThresholdsMs       map[string]float64 `yaml:"latency_thresholds_ms"`
}

// LoadConfig reads and parses a YAML config file, expanding environment
// variable references first.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config content with env expansion.
func ParseConfig(data []byte) (Config, error) {
	expanded := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: providers priority list is empty")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p == "" {
			return fmt.Errorf("config: empty provider name in priority list")
		}
		if seen[p] {
			return fmt.Errorf("config: duplicate provider %q in priority list", p)
		}
		seen[p] = true
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("config: no models configured")
	}
	if c.Baseline != "" {
		found := false
		for _, m := range c.Models {
			if m.ID == c.Baseline {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("config: baseline model %q not in model list", c.Baseline)
		}
	}
	return nil
}

// BreakerConfig converts the file form to the breaker package's config.
// Zero fields fall through to the breaker defaults.
func (c Config) BreakerConfig() breaker.Config {
	return breaker.Config{
		FailureThreshold: c.Circuit.FailureThreshold,
		SuccessThreshold: c.Circuit.SuccessThreshold,
		Timeout:          time.Duration(c.Circuit.TimeoutMs) * time.Millisecond,
		MonitoringWindow: time.Duration(c.Circuit.MonitoringWindowMs) * time.Millisecond,
	}
}

// RetryConfigValue converts the file form to the failover package's
// config. An omitted retry section falls through to the failover
// defaults; an explicit max_retries of 0 disables retries.
func (c Config) RetryConfigValue() failover.RetryConfig {
	if c.Retry == (RetryConfig{}) {
		return failover.DefaultRetryConfig()
	}
	return failover.RetryConfig{
		MaxRetries:      c.Retry.MaxRetries,
		InitialDelay:    time.Duration(c.Retry.InitialDelayMs) * time.Millisecond,
		MaxDelay:        time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
		ExponentialBase: c.Retry.ExponentialBase,
	}
}

// CacheConfigs converts the per-use-case cache section to the cache
// package's config map.
func (c Config) CacheConfigs() map[string]cache.Config {
	configs := make(map[string]cache.Config, len(c.Cache.UseCases))
	for useCase, cc := range c.Cache.UseCases {
		configs[useCase] = cc.toCacheConfig()
	}
	return configs
}

// DefaultCacheConfig converts the default cache policy. An unset section
// falls through to the cache package defaults.
func (c Config) DefaultCacheConfig() cache.Config {
	if c.Cache.Default == (CacheConfig{}) {
		return cache.DefaultConfig()
	}
	return c.Cache.Default.toCacheConfig()
}

func (cc CacheConfig) toCacheConfig() cache.Config {
	return cache.Config{
		TTL:        time.Duration(cc.TTLMs) * time.Millisecond,
		MaxEntries: cc.MaxEntries,
		Enabled:    cc.Enabled,
	}
}

// MonitorConfigValue converts the monitor thresholds to the monitor
// package's config.
func (c Config) MonitorConfigValue() monitor.Config {
	return monitor.Config{
		LatencyThresholdsMs:       c.Monitor.LatencyThresholdsMs,
		DefaultLatencyThresholdMs: c.Monitor.DefaultLatencyThresholdMs,
	}
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references in config
// content. Supports ${VAR_NAME:-default} for default values.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}
