package observability

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every line the service logger writes.
const ServiceName = "simplesla-notifier"

type correlationIDKey struct{}

func NewLogger(level string) (*zap.Logger, error) {
	cfg, err := serviceLoggerConfig(level)
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func serviceLoggerConfig(level string) (zap.Config, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return zap.Config{}, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.InitialFields = map[string]any{"service": ServiceName}

	return cfg, nil
}

// NewConsoleLogger writes plain lines to w, typically the build's console,
// so notifier output sits next to the build log.
func NewConsoleLogger(level string, w io.Writer) (*zap.Logger, error) {
	if w == nil {
		return nil, fmt.Errorf("log writer is required")
	}
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.TimeKey = ""
	encoderCfg.CallerKey = ""
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		parsedLevel,
	)), nil
}

// parseLevel accepts zap level names in any case; empty means info.
func parseLevel(level string) (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "" {
		return zapcore.InfoLevel, nil
	}

	parsed, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey{}, strings.TrimSpace(correlationID))
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id, id != ""
}

// WithContextLogger adds the context's correlation id, if any, to logger.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}
	if id, ok := CorrelationIDFromContext(ctx); ok {
		return logger.With(zap.String("correlationId", id))
	}
	return logger
}
