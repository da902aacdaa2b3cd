package utils

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Logger wraps a zap sugared logger with key/value helpers.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// InitLogger builds a logger for mode: "prod" gives JSON output at info
// level, "test" discards everything, anything else is the development console.
func InitLogger(mode string) (*Logger, error) {
	var zl *zap.Logger
	var err error
	switch strings.ToLower(mode) {
	case "prod", "production":
		zl, err = zap.NewProductionConfig().Build()
	case "test", "nop":
		zl = zap.NewNop()
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zl, err = cfg.Build()
	}
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zl.Sugar()}, nil
}

// NopLogger returns a logger that writes nothing.
func NopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, redact(keysAndValues)...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, redact(keysAndValues)...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, redact(keysAndValues)...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, redact(keysAndValues)...)
}

func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, redact(keysAndValues)...)
}

func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(redact(keysAndValues)...)}
}

// redact blanks values whose key names a credential.
func redact(kv []interface{}) []interface{} {
	if len(kv) < 2 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key := strings.ToLower(fmt.Sprint(out[i]))
		if strings.Contains(key, "password") ||
			strings.Contains(key, "token") ||
			strings.Contains(key, "secret") ||
			strings.Contains(key, "authorization") {
			out[i+1] = "[REDACTED]"
		}
	}
	return out
}
