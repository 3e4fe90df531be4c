// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level names accepted by config, mirrored from the teacher's constants.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Logger bundles a zap logger with its atomic level so the level can be
// changed at runtime by the config hot-reload path.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// New builds a zap logger. dev selects the human-readable console
// encoder; production builds use the JSON encoder
// sized for log aggregation, matching the teacher's zap.NewProduction
// call in cmd/vaultaire/main.go.
func New(level string, dev bool) (*Logger, error) {
	zl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	atomic := zap.NewAtomicLevelAt(zl)
	cfg.Level = atomic

	built, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return &Logger{Logger: built, level: atomic}, nil
}

// SetLevel changes the logger's minimum level in place.
func (l *Logger) SetLevel(level string) error {
	zl, err := parseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(zl)
	return nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "", LevelInfo:
		return zapcore.InfoLevel, nil
	case LevelDebug:
		return zapcore.DebugLevel, nil
	case LevelWarn:
		return zapcore.WarnLevel, nil
	case LevelError:
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("logging: invalid level: %s", level)
	}
}
