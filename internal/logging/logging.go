// Package logging builds the process zap logger from configuration.
package logging

import (
	"fmt"
	"strings"

	"assetflow/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a zap logger for cfg. verbose forces debug level. Output goes
// to stderr so command output on stdout stays machine readable.
func New(cfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console", "text":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.With(zap.String("service", "assetflow")), nil
}

func parseLevel(raw string) (zapcore.Level, error) {
	if raw == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q: %w", raw, err)
	}
	return level, nil
}
