// Package logger provides the structured logger every component in this
// module logs through: a zap-backed implementation of LoggerInterface with
// credential redaction and correlation-ID propagation built in.
package logger

import (
	"context"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerInterface is the logging contract every package depends on, never
// *zap.Logger directly, so the backend can be swapped without touching
// call sites.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
	With(kv ...any) LoggerInterface
}

// Logger is the default LoggerInterface implementation.
type Logger struct {
	sugar    *zap.SugaredLogger
	redactor *Redactor
}

// New builds a Logger writing JSON records to w at level and above. Every
// record carries a "service" field set to serviceName. redactor may be nil,
// in which case DefaultRedactor is used so credential fields are never
// logged by accident.
func New(w io.Writer, level Level, serviceName string, redactor *Redactor) *Logger {
	if redactor == nil {
		redactor = DefaultRedactor()
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(w),
		level.zapLevel(),
	)

	zl := zap.New(core).With(zap.String("service", serviceName))
	return &Logger{sugar: zl.Sugar(), redactor: redactor}
}

// correlationKey scopes a correlation ID to one connection lifecycle
// every log emitted while handling that lifecycle's events
// carries the same value, so a reconnect cycle can be traced end to end.
type correlationKey struct{}

// WithCorrelationID attaches id to ctx so every Logger call made with the
// returned context is tagged with it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationFields(ctx context.Context) []any {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return []any{"correlation_id", id}
	}
	return nil
}

func (l *Logger) log(level Level, ctx context.Context, msg string, kv []any) {
	fields := append(correlationFields(ctx), l.redactor.Redact(kv)...)
	switch level {
	case LevelDebug:
		l.sugar.Debugw(msg, fields...)
	case LevelWarn:
		l.sugar.Warnw(msg, fields...)
	case LevelError:
		l.sugar.Errorw(msg, fields...)
	default:
		l.sugar.Infow(msg, fields...)
	}
}

func (l *Logger) Debug(ctx context.Context, msg string, kv ...any) { l.log(LevelDebug, ctx, msg, kv) }
func (l *Logger) Info(ctx context.Context, msg string, kv ...any)  { l.log(LevelInfo, ctx, msg, kv) }
func (l *Logger) Warn(ctx context.Context, msg string, kv ...any)  { l.log(LevelWarn, ctx, msg, kv) }
func (l *Logger) Error(ctx context.Context, msg string, kv ...any) { l.log(LevelError, ctx, msg, kv) }

// With returns a Logger that prepends kv (already redacted) to every record.
func (l *Logger) With(kv ...any) LoggerInterface {
	return &Logger{sugar: l.sugar.With(l.redactor.Redact(kv)...), redactor: l.redactor}
}

var _ LoggerInterface = (*Logger)(nil)
