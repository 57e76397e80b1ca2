package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON production logger at the named level. Entries whose
// message contains any of suppress are dropped.
func New(level string, suppress ...string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var opts []zap.Option
	if len(suppress) > 0 {
		opts = append(opts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return NewFilterCore(c, suppress...)
		}))
	}
	return cfg.Build(opts...)
}

// ParseLevel accepts zap's level names, case-insensitively, plus "warning".
func ParseLevel(level string) (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return lvl, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}

type filterCore struct {
	zapcore.Core
	suppress []string
}

// NewFilterCore wraps c so that entries whose message contains one of
// suppress never reach it.
func NewFilterCore(c zapcore.Core, suppress ...string) zapcore.Core {
	var subs []string
	for _, s := range suppress {
		if s != "" {
			subs = append(subs, s)
		}
	}
	if len(subs) == 0 {
		return c
	}
	return &filterCore{Core: c, suppress: subs}
}

func (f *filterCore) With(fields []zapcore.Field) zapcore.Core {
	return &filterCore{Core: f.Core.With(fields), suppress: f.suppress}
}

func (f *filterCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	for _, s := range f.suppress {
		if strings.Contains(ent.Message, s) {
			return ce
		}
	}
	return f.Core.Check(ent, ce)
}
