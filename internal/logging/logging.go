// Package logging builds the zap logger shared by the vsense binaries.
package logging

import (
	"fmt"
	"strings"

	"github.com/violencesense/vsense/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger for cfg. An empty cfg.File logs to stderr.
func New(cfg config.LoggerConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	out := "stderr"
	if cfg.File != "" {
		out = cfg.File
	}
	zc.OutputPaths = []string{out}
	zc.ErrorOutputPaths = []string{out}

	return zc.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
