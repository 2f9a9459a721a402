package logger

import (
	"log"

	"github.com/jaennil/tileproxy/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger builds a JSON logger writing to stderr at cfg.Level.
// An unknown level falls back to info.
func NewZapLogger(cfg config.Logger) *ZapLogger {
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	zc.Level = zap.NewAtomicLevelAt(toZapLevel(cfg.Level))
	zc.Sampling = nil

	base, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		log.Fatal("error occurred while building zap logger: ", err)
	}

	return newZapLogger(base)
}

func newZapLogger(base *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: base.Sugar()}
}

func toZapLevel(levelStr string) zapcore.Level {
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		log.Printf("WARN (toZapLevel): unknown log level %q - using INFO level", levelStr)
		return zapcore.InfoLevel
	}
	return level
}

func (l *ZapLogger) With(keysAndValues ...any) Logger {
	return &ZapLogger{sugar: l.sugar.With(keysAndValues...)}
}

func (l *ZapLogger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *ZapLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *ZapLogger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *ZapLogger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *ZapLogger) Fatal(msg string, keysAndValues ...any) {
	l.sugar.Fatalw(msg, keysAndValues...)
}

func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
