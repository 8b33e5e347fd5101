package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level" validate:"required,oneof=none normal debug"`
	// File, when set, receives a copy of every message at debug level.
	File string `yaml:"file,omitempty" toml:"file"`
	Mode string `yaml:"mode,omitempty" toml:"mode" validate:"omitempty,oneof=append overwrite"`
}

// Prepare builds the program logger: console at the configured level, errors
// on stderr, and an optional debug file.
func (conf *LoggingConfig) Prepare() (*zap.Logger, error) {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	console := zapcore.NewConsoleEncoder(ec)

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	var minLevel zapcore.Level
	cores := []zapcore.Core{}
	switch conf.Level {
	case "debug":
		minLevel = zapcore.DebugLevel
	case "normal":
		minLevel = zapcore.InfoLevel
	default:
		minLevel = zapcore.FatalLevel + 1
	}
	if minLevel <= zapcore.FatalLevel {
		cores = append(cores,
			zapcore.NewCore(console, zapcore.Lock(os.Stdout), zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return minLevel <= lvl && lvl < zapcore.ErrorLevel
			})),
			zapcore.NewCore(console, zapcore.Lock(os.Stderr), highPriority),
		)
	}

	if conf.File != "" {
		flags := os.O_CREATE | os.O_WRONLY
		if conf.Mode == "append" {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(conf.File, flags, 0o644)
		if err != nil {
			return nil, fmt.Errorf("unable to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(f),
			zap.NewAtomicLevelAt(zap.DebugLevel)))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}
