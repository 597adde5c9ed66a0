package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yungbote/neurobridge-cat/internal/platform/envutil"
)

// Logger is a key/value logger over zap. Values under sensitive keys are
// hashed or redacted before they reach the encoder.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a logger for mode: "prod" emits JSON at info, "test" keeps only
// warnings, anything else is the development console at debug. LOG_LEVEL
// overrides the level in every mode.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	level := zapcore.DebugLevel
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		level = zapcore.InfoLevel
	case "test":
		cfg = zap.NewDevelopmentConfig()
		level = zapcore.WarnLevel
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	if raw := envutil.String("LOG_LEVEL", ""); raw != "" {
		if parsed, err := zapcore.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: z.Sugar()}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{sugar: z.Sugar()}
}

// Nop discards everything.
func Nop() *Logger {
	return FromZap(zap.NewNop())
}

func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

func (l *Logger) Debug(msg string, kv ...any) { l.sugar.Debugw(msg, defaultRedactor().apply(kv)...) }
func (l *Logger) Info(msg string, kv ...any)  { l.sugar.Infow(msg, defaultRedactor().apply(kv)...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.sugar.Warnw(msg, defaultRedactor().apply(kv)...) }
func (l *Logger) Error(msg string, kv ...any) { l.sugar.Errorw(msg, defaultRedactor().apply(kv)...) }
func (l *Logger) Fatal(msg string, kv ...any) { l.sugar.Fatalw(msg, defaultRedactor().apply(kv)...) }

// With returns a child logger carrying kv on every entry.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{sugar: l.sugar.With(defaultRedactor().apply(kv)...)}
}
