// Package logger is the structured logger shared by the engine. Every entry
// carries key/value pairs; components tag their entries with Component.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger logs key/value entries through zap. Build one with New, Nop or
// FromZap.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds the process logger. Mode "prod" selects JSON output, anything
// else the console encoder. An empty level keeps the mode default: info in
// prod, debug otherwise.
func New(mode, level string) (*Logger, error) {
	prod := false
	switch strings.ToLower(mode) {
	case "prod", "production":
		prod = true
	}
	cfg := zap.NewDevelopmentConfig()
	lvl := zapcore.DebugLevel
	if prod {
		cfg = zap.NewProductionConfig()
		lvl = zapcore.InfoLevel
	}
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		lvl = parsed
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return FromZap(z), nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{s: z.Sugar()}
}

// Nop discards everything.
func Nop() *Logger {
	return FromZap(zap.NewNop())
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// Component returns a child logger whose entries carry component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// With returns a child logger that adds keysAndValues to every entry.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{s: l.s.With(keysAndValues...)}
}

func (l *Logger) Sync() { _ = l.s.Sync() }

func (l *Logger) Debug(msg string, keysAndValues ...any) { l.s.Debugw(msg, keysAndValues...) }
func (l *Logger) Info(msg string, keysAndValues ...any) { l.s.Infow(msg, keysAndValues...) }
func (l *Logger) Warn(msg string, keysAndValues ...any) { l.s.Warnw(msg, keysAndValues...) }
func (l *Logger) Error(msg string, keysAndValues ...any) { l.s.Errorw(msg, keysAndValues...) }
func (l *Logger) Fatal(msg string, keysAndValues ...any) { l.s.Fatalw(msg, keysAndValues...) }
