// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// L is the process-wide logger. It starts as a no-op logger and is
// replaced by InitLogger before any command runs.
var L = zap.NewNop()

// InitLogger installs the bootstrap logger used before configuration is
// loaded. It never fails: if the build errors, L keeps its previous value.
func InitLogger() {
	logger, err := New(false)
	if err != nil {
		return
	}
	L = logger
}

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// NewRotating builds a logger that tees console output to a size-rotated
// JSON log file. Unattended runs keep their history on disk this way; an
// empty path falls back to New.
func NewRotating(path string, development bool) (*zap.Logger, error) {
	console, err := New(development)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return console, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(rotator),
		zapcore.InfoLevel,
	)

	tee := zapcore.NewTee(console.Core(), fileCore)
	return zap.New(tee, zap.AddCaller()), nil
}
