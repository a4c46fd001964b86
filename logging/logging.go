// Package logging builds the gateway's line logger on top of zap.
//
// Every line has the shape
//
//	2026-03-01T12:00:00.000Z [INFO] [Request] GET /api/orders
//
// where the bracketed source is the zap logger name. INFO and DEBUG go to
// stdout, WARN and ERROR to stderr. DEBUG is only emitted in development.
package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sources used across the gateway.
const (
	SourceRequest    = "Request"
	SourceMiddleware = "Middleware"
	SourceSession    = "Session"
	SourceProxy      = "Proxy"
	SourceTelegram   = "Telegram"
	SourceServer     = "Server"
)

// Config selects the minimum level and development mode.
type Config struct {
	Development bool
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
}

// Logger writes source-tagged lines. Write failures are handled inside zap
// and never reach the caller.
type Logger struct {
	base *zap.Logger
}

// New builds a Logger writing to stdout and stderr.
func New(cfg Config) (*Logger, error) {
	return NewWithWriters(cfg, zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr))
}

// NewWithWriters builds a Logger on explicit sinks: out receives INFO and
// DEBUG, errOut receives WARN and ERROR.
func NewWithWriters(cfg Config, out, errOut zapcore.WriteSyncer) (*Logger, error) {
	minLevel, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Development {
		minLevel = zapcore.DebugLevel
	} else if minLevel < zapcore.InfoLevel {
		minLevel = zapcore.InfoLevel
	}

	enc := zapcore.NewConsoleEncoder(encoderConfig())

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= minLevel && l < zapcore.WarnLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= minLevel && l >= zapcore.WarnLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(enc, out, low),
		zapcore.NewCore(enc, errOut, high),
	)
	return &Logger{base: zap.New(core)}, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{base: zap.NewNop()}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "source",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
		},
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + l.CapitalString() + "]")
		},
		EncodeName: func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + name + "]")
		},
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Named returns the underlying zap logger tagged with source.
func (l *Logger) Named(source string) *zap.Logger {
	return l.base.Named(source)
}

func (l *Logger) Info(source, msg string) {
	l.base.Named(source).Info(msg)
}

func (l *Logger) Warn(source, msg string) {
	l.base.Named(source).Warn(msg)
}

func (l *Logger) Error(source, msg string) {
	l.base.Named(source).Error(msg)
}

func (l *Logger) Debug(source, msg string) {
	l.base.Named(source).Debug(msg)
}

// Sync flushes buffered lines. Errors from syncing a terminal are common and
// safe to ignore.
func (l *Logger) Sync() error {
	return l.base.Sync()
}
