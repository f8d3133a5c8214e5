package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the process-wide logger. It is a no-op logger until Init is called,
// so packages and tests can log unconditionally.
var L = zap.NewNop()

// Init builds L.
// level is one of "debug", "info", "warn", "error", "dpanic", "panic", "fatal".
// production selects JSON output; otherwise a colored console encoder is used.
func Init(level string, production bool) error {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
		fmt.Fprintf(os.Stderr, "Warning: invalid log level '%s', using 'info': %v\n", level, err)
	}

	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	built, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize zap logger: %w", err)
	}
	L = built

	L.Info("logger initialized", zap.String("level", zapLevel.String()), zap.Bool("production", production))
	return nil
}

// Sync flushes any buffered log entries. Call it before the process exits.
func Sync() {
	if L != nil {
		_ = L.Sync()
	}
}
