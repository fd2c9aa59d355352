// Package logging builds the zap logger used by the demo binary.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/n-r-w/datafetch/config"
)

// New builds a zap logger from cfg. The json format uses the production encoder,
// console uses the development one. The returned cleanup flushes buffered entries.
func New(cfg config.LoggingConfig) (*zap.Logger, func() error, error) {
	var level zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "info", "":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		return nil, nil, fmt.Errorf("logging: unsupported level %q", cfg.Level)
	}

	var zcfg zap.Config
	switch strings.ToLower(cfg.Format) {
	case "json", "":
		zcfg = zap.NewProductionConfig()
	case "console":
		zcfg = zap.NewDevelopmentConfig()
	default:
		return nil, nil, fmt.Errorf("logging: unsupported format %q", cfg.Format)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("logging: build: %w", err)
	}
	logger = logger.With(zap.String("component", "datafetch"))

	return logger, logger.Sync, nil
}
