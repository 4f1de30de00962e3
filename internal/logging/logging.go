package logging

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger. format "json" selects the production encoder,
// anything else the human-readable development encoder.
func New(levelStr, format string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch levelStr {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// Error logs err at error level, expanding goerr values when present.
func Error(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	logger.Error(msg, append(fields, errorFields(err)...)...)
}

// Warn logs a recoverable failure. Fallback paths use it instead of Error.
func Warn(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	logger.Warn(msg, append(fields, errorFields(err)...)...)
}

func errorFields(err error) []zap.Field {
	if err == nil {
		return nil
	}
	fields := []zap.Field{zap.Error(err)}
	var ge *goerr.Error
	if errors.As(err, &ge) {
		if values := ge.Values(); len(values) > 0 {
			fields = append(fields, zap.Any("values", values))
		}
	}
	return fields
}
