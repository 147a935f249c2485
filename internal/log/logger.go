package log

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

// Logger provides structured key/value logging backed by zap
type Logger struct {
	sugar  *zap.SugaredLogger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(config.Output.Writer()), config.Level.ToZapLevel())

	var opts []zap.Option
	if config.AddCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	base := zap.New(core, opts...)
	if config.ServiceName != "" {
		base = base.With(zap.String("service", config.ServiceName))
	}

	return &Logger{
		sugar:  base.Sugar(),
		config: config,
	}
}

// Default creates a logger with default configuration
func Default() *Logger {
	return New(DefaultConfig())
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), config: DefaultConfig()}
}

// With returns a new Logger with the given key/value pairs added to all entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		sugar:  l.sugar.With(args...),
		config: l.config,
	}
}

// Named returns a new Logger with name appended to the logger name
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		sugar:  l.sugar.Named(name),
		config: l.config,
	}
}

// WithError adds error details to the logger
// If the error is a DeskError, it adds error_code and status
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	if deskErr, ok := errors.As(err); ok {
		args := []any{
			"error", deskErr.Message,
			"error_code", string(deskErr.Code),
		}

		if deskErr.Status != 0 {
			args = append(args, "status", deskErr.Status)
		}

		if deskErr.Cause != nil {
			args = append(args, "cause", deskErr.Cause.Error())
		}

		return l.With(args...)
	}

	return l.With("error", err.Error())
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}

// LogError logs an error with full details
func (l *Logger) LogError(msg string, err error) {
	if err == nil {
		return
	}
	l.WithError(err).Error(msg)
}

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(_ context.Context, level Level) bool {
	return l.sugar.Desugar().Core().Enabled(level.ToZapLevel())
}

// Zap returns the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Sync flushes any buffered entries
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}
