// Package logging builds the zap loggers used across the engine.
package logging

import (
	"go.uber.org/zap"
)

// Config holds logging configuration.
type Config struct {
	Level       string `json:"level"`
	Format      string `json:"format"` // "json" or "console"
	OutputPath  string `json:"output_path"`
	Development bool   `json:"development"`
}

// New creates a structured logger from the configuration.
func New(cfg Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	if cfg.OutputPath != "" {
		zapConfig.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", "sheetmetal")), nil
}

// ForRun returns a child logger scoped to one pipeline run.
func ForRun(base *zap.Logger, runID, file, configuration string) *zap.Logger {
	return OrNop(base).With(
		zap.String("run_id", runID),
		zap.String("file", file),
		zap.String("configuration", configuration),
	)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
