package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Redacted replaces every configured secret in log output.
const Redacted = "[REDACTED]"

// minSecretLen keeps short values (a "1" password) from blanking out logs.
const minSecretLen = 6

// Config 日志配置
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
	// Secrets are scrubbed from messages, string fields and errors.
	// Provider errors can carry them (the Telegram client puts the bot token
	// in request URLs).
	Secrets []string
}

// NewLogger 创建新的日志实例
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if cfg.Format != "console" {
		cfg.Format = "json"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = "stdout"
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{cfg.OutputPath},
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if r := newReplacer(cfg.Secrets); r != nil {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return &redactCore{Core: core, replacer: r}
		}))
	}
	return config.Build(opts...)
}

// newReplacer returns nil when there is nothing worth scrubbing. Longer
// secrets are replaced first so one secret containing another is fully hidden.
func newReplacer(secrets []string) *strings.Replacer {
	seen := make(map[string]bool, len(secrets))
	var keep []string
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if len(s) < minSecretLen || seen[s] {
			continue
		}
		seen[s] = true
		keep = append(keep, s)
	}
	if len(keep) == 0 {
		return nil
	}
	sort.Slice(keep, func(i, j int) bool { return len(keep[i]) > len(keep[j]) })

	pairs := make([]string, 0, 2*len(keep))
	for _, s := range keep {
		pairs = append(pairs, s, Redacted)
	}
	return strings.NewReplacer(pairs...)
}

// redactCore scrubs secrets before entries reach the wrapped core.
type redactCore struct {
	zapcore.Core
	replacer *strings.Replacer
}

func (c *redactCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactCore{Core: c.Core.With(c.scrub(fields)), replacer: c.replacer}
}

func (c *redactCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.replacer.Replace(ent.Message)
	return c.Core.Write(ent, c.scrub(fields))
}

func (c *redactCore) scrub(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch f.Type {
		case zapcore.StringType:
			f.String = c.replacer.Replace(f.String)
		case zapcore.ErrorType:
			// 错误信息里可能带着 URL 中的 token
			if err, ok := f.Interface.(error); ok && err != nil {
				f = zap.String(f.Key, c.replacer.Replace(err.Error()))
			}
		case zapcore.StringerType:
			if s, ok := f.Interface.(fmt.Stringer); ok && s != nil {
				f = zap.String(f.Key, c.replacer.Replace(s.String()))
			}
		}
		out[i] = f
	}
	return out
}
