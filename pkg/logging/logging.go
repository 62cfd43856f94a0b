// Package logging builds the zap logger shared by the cwkit packages.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLevel is consulted when no explicit level is given.
const EnvLevel = "CWKIT_LOG_LEVEL"

// New returns a sugared logger writing to stderr. level is one of debug, info,
// warn, error; anything else means info.
func New(level string) (*zap.SugaredLogger, error) {
	if strings.TrimSpace(level) == "" {
		level = os.Getenv(EnvLevel)
	}
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if l, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil {
		lvl.SetLevel(l)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar().Named("cwkit"), nil
}

// Nop returns a logger that discards everything, for tests and library use.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
