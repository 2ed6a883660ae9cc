// Package logging carries a zap sugared logger through context.Context so
// library code can log with request-scoped fields without holding a logger.
package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type ctxKey struct{}

var fallback = zap.NewNop().Sugar()

// Config controls logger construction
type Config struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// New builds a zap logger. Development mode uses the console encoder.
func New(cfg Config) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zapConfig.Level = level
	}

	return zapConfig.Build()
}

// WithLogger returns a context carrying logger
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// With returns a context whose logger carries the extra key-value pairs
func With(ctx context.Context, keysAndValues ...interface{}) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(keysAndValues...))
}

// FromContext returns the context logger, or a no-op logger
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok && logger != nil {
			return logger
		}
	}
	return fallback
}

func Debugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	FromContext(ctx).Debugw(msg, keysAndValues...)
}

func Infow(ctx context.Context, msg string, keysAndValues ...interface{}) {
	FromContext(ctx).Infow(msg, keysAndValues...)
}

func Warnw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	FromContext(ctx).Warnw(msg, keysAndValues...)
}

func Errorw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	FromContext(ctx).Errorw(msg, keysAndValues...)
}
