// Package logging builds the zap loggers used across paperqa.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level  string
	Format string
	// File redirects output to a file; empty means stderr.
	File string
}

// New returns a logger writing to stderr or cfg.File, plus a function that
// flushes and closes the sink.
func New(cfg Config) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(defaultString(cfg.Level, "info"))
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	var (
		w       io.Writer = os.Stderr
		closeFn           = func() {}
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}
	logger := NewWithWriter(w, cfg.Format, level)
	return logger, func() {
		_ = logger.Sync()
		closeFn()
	}, nil
}

// NewWithWriter builds a logger over any writer.
func NewWithWriter(w io.Writer, format string, level zapcore.Level) *zap.Logger {
	core := zapcore.NewCore(newEncoder(format), zapcore.AddSync(w), level)
	return zap.New(core, zap.AddCaller())
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
