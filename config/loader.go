package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the environment prefix used by the demo binary.
const EnvPrefix = "DATAFETCH"

// Loader hydrates the configuration with env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a loader reading files in order, then environment variables with envPrefix.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles and validates the effective configuration.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(DefaultConfig()), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"http.baseurl":     "http.baseURL",
			"demo.metricspath": "demo.metricsPath",
		}
		transform := func(s string) string {
			// DATAFETCH_CACHE__SIZE -> cache.size
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			if strings.HasPrefix(lower, "http.headers.") {
				// Header names keep their dashes: DATAFETCH_HTTP__HEADERS__X_API_KEY -> x-api-key
				return "http.headers." + strings.ReplaceAll(strings.TrimPrefix(lower, "http.headers."), "_", "-")
			}
			return strings.ReplaceAll(lower, "_", "")
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// structToMap converts a Config into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	headers := make(map[string]any, len(cfg.HTTP.Headers))
	for k, v := range cfg.HTTP.Headers {
		headers[k] = v
	}

	return map[string]any{
		"cache": map[string]any{
			"size":    cfg.Cache.Size,
			"enabled": cfg.Cache.Enabled,
		},
		"http": map[string]any{
			"baseURL": cfg.HTTP.BaseURL,
			"timeout": cfg.HTTP.Timeout.String(),
			"headers": headers,
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
		"demo": map[string]any{
			"listen":      cfg.Demo.Listen,
			"metricsPath": cfg.Demo.MetricsPath,
		},
	}
}
