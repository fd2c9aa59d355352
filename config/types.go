// Package config loads datafetch settings from defaults, YAML files and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/n-r-w/datafetch"
)

// Config holds provider, logging and demo settings.
type Config struct {
	Cache   CacheConfig   `koanf:"cache"`
	HTTP    HTTPConfig    `koanf:"http"`
	Logging LoggingConfig `koanf:"logging"`
	Demo    DemoConfig    `koanf:"demo"`
}

// CacheConfig controls the provider response cache.
type CacheConfig struct {
	Size    int  `koanf:"size"`
	Enabled bool `koanf:"enabled"`
}

// HTTPConfig configures the default HTTP transport.
type HTTPConfig struct {
	BaseURL string            `koanf:"baseURL"`
	Timeout time.Duration     `koanf:"timeout"`
	Headers map[string]string `koanf:"headers"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DemoConfig configures the demo server.
type DemoConfig struct {
	Listen      string `koanf:"listen"`
	MetricsPath string `koanf:"metricsPath"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			Size:    datafetch.DefaultCacheSize,
			Enabled: false,
		},
		HTTP: HTTPConfig{
			Timeout: 10 * time.Second,
			Headers: map[string]string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Demo: DemoConfig{
			Listen:      "127.0.0.1:8080",
			MetricsPath: "/metrics",
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("config: cache.size invalid: %d", c.Cache.Size)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("config: http.timeout invalid: %s", c.HTTP.Timeout)
	}
	if base := strings.TrimSpace(c.HTTP.BaseURL); base != "" {
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: http.baseURL invalid: %q", c.HTTP.BaseURL)
		}
	}
	if strings.TrimSpace(c.Demo.Listen) == "" {
		return errors.New("config: demo.listen required")
	}
	if c.Demo.MetricsPath != "" && !strings.HasPrefix(c.Demo.MetricsPath, "/") {
		return fmt.Errorf("config: demo.metricsPath must start with /: %q", c.Demo.MetricsPath)
	}
	return nil
}

// ProviderOptions translates the cache and HTTP settings into provider options.
func (c *Config) ProviderOptions() []datafetch.ProviderOption {
	return []datafetch.ProviderOption{
		datafetch.WithCacheSize(c.Cache.Size),
		datafetch.WithUseCache(c.Cache.Enabled),
		datafetch.WithHTTPOptions(datafetch.HTTPOptions{ //nolint:exhaustruct // default client
			BaseURL: c.HTTP.BaseURL,
			Timeout: c.HTTP.Timeout,
			Headers: c.HTTP.Headers,
		}),
	}
}
