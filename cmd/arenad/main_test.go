package main

import (
	"testing"

	"github.com/arenasim/server/internal/config"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		cfg  config.LoggingConfig
		want zapcore.Level
	}{
		{config.LoggingConfig{Level: "debug", Format: "console"}, zapcore.DebugLevel},
		{config.LoggingConfig{Level: "warn", Format: "json"}, zapcore.WarnLevel},
		{config.LoggingConfig{Level: "loud"}, zapcore.InfoLevel},
	}
	for _, c := range cases {
		log, err := newLogger(c.cfg)
		if err != nil {
			t.Fatalf("newLogger(%+v): %v", c.cfg, err)
		}
		if !log.Core().Enabled(c.want) || (c.want > zapcore.DebugLevel && log.Core().Enabled(c.want-1)) {
			t.Errorf("newLogger(%+v): expected level %s", c.cfg, c.want)
		}
	}
}
