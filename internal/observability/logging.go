package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the root logger. format is "json" or "console". The
// returned level can be changed while the logger is in use.
func NewLogger(level, format string) (*zap.Logger, zap.AtomicLevel, error) {
	atom, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return nil, atom, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger, err := BuildLogger(atom, format)
	return logger, atom, err
}

// BuildLogger builds a logger whose level follows atom.
func BuildLogger(atom zap.AtomicLevel, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}
	cfg.Level = atom
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// SetLevel applies a textual level, ignoring values zap does not know.
func SetLevel(atom zap.AtomicLevel, level string) bool {
	l, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return false
	}
	atom.SetLevel(l)
	return true
}
