package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger so components take one injectable dependency.
type Logger struct {
	Log *zap.Logger
}

// NewLogger builds a production JSON logger.
func NewLogger() (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Log: l}, nil
}

// NewDevelopmentLogger builds a human friendly console logger.
func NewDevelopmentLogger() (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Log: l}, nil
}

// ForEnv picks the development logger for "development" and the JSON logger otherwise.
func ForEnv(env string) (*Logger, error) {
	if env == "development" {
		return NewDevelopmentLogger()
	}
	return NewLogger()
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Log: zap.NewNop()}
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Log: l.Log.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.Log.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.Log.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.Log.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.Log.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.Log.Fatal(msg, fields...) }

func (l *Logger) Sync() error { return l.Log.Sync() }
