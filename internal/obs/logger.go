package obs

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level  string
	Pretty bool
	App    string
	Env    string
	Ver    string
}

// NewLogger builds the process logger and installs it as the zap global.
// Pretty selects the colored console encoder for local runs; otherwise JSON.
// An unknown level falls back to info.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.Fields(serviceFields(c)...))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(l)
	return l, nil
}

func serviceFields(c LogConfig) []zap.Field {
	fs := []zap.Field{zap.String("service", c.App)}
	if c.Env != "" {
		fs = append(fs, zap.String("env", c.Env))
	}
	if c.Ver != "" {
		fs = append(fs, zap.String("version", c.Ver))
	}
	return fs
}
