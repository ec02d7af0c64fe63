// Package logging builds the zap logger used across hatloop. Logs go to
// a file under .hatloop/logs; stderr output is optional so that modes
// which own the terminal (interactive execution) stay clean.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger writing to logFile at the given level.
// Unknown levels fall back to info.
func NewLogger(level, logFile string) (*zap.Logger, error) {
	return NewLoggerWithStderr(level, logFile, false)
}

// NewLoggerWithStderr creates a zap logger writing to logFile and,
// when includeStderr is set, to stderr as well.
func NewLoggerWithStderr(level, logFile string, includeStderr bool) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	lvl := parseLevel(level)
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(file), lvl),
	}
	if includeStderr {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), lvl))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "off":
		// zap has no "off"; fatal effectively silences normal output.
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
