package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger. Level is one of debug, info, warn, error; format is json or
// console. Unknown levels fall back to info.
func New(level, format string) *zap.Logger {
	var cfg zap.Config
	if strings.ToLower(level) == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if err := cfg.Level.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		fmt.Fprintf(os.Stderr, "invalid LOG_LEVEL %q, using info\n", level)
		cfg.Level.SetLevel(zapcore.InfoLevel)
	}

	switch strings.ToLower(format) {
	case "console", "text":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg.Encoding = "json"
	}

	l, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v, falling back to production defaults\n", err)
		l, _ = zap.NewProduction()
	}
	return l
}
