package logging

import (
	"testing"

	"assetflow/internal/config"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.LoggingConfig
		verbose bool
		want    zapcore.Level
	}{
		{"default", config.LoggingConfig{}, false, zapcore.InfoLevel},
		{"warn json", config.LoggingConfig{Level: "warn", Format: "json"}, false, zapcore.WarnLevel},
		{"console", config.LoggingConfig{Level: "error", Format: "console"}, false, zapcore.ErrorLevel},
		{"verbose wins", config.LoggingConfig{Level: "error"}, true, zapcore.DebugLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logger, err := New(tc.cfg, tc.verbose)
			if err != nil {
				t.Fatalf("new logger: %v", err)
			}
			if !logger.Core().Enabled(tc.want) {
				t.Fatalf("level %s not enabled", tc.want)
			}
			if tc.want > zapcore.DebugLevel && logger.Core().Enabled(tc.want-1) {
				t.Fatalf("level below %s should be disabled", tc.want)
			}
		})
	}
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "chatty"}, false); err == nil {
		t.Fatalf("expected unknown level error")
	}
	if _, err := New(config.LoggingConfig{Format: "xml"}, false); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
