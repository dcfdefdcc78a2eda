package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	Ctx         context.Context
	RateLimiter RateLimiterConfig
	Level       slog.Level
	AddSource   bool
	// Output defaults to stderr so reports on stdout stay machine readable.
	Output io.Writer
	Hook   HookConfig
}

type RateLimiterConfig struct {
	Limit  rate.Limit
	Burst  int
	Inform bool
	// InformInterval defaults to 5s.
	InformInterval time.Duration
}

type HookConfig struct {
	HookFunc HookFunc
	MinLevel slog.Level
}

func MustParseLevel(lvlStr string) slog.Level {
	lvl, err := ParseLevel(lvlStr)
	if err != nil {
		panic("parsing log level from level string " + lvlStr)
	}
	return lvl
}

func ParseLevel(lvlStr string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(lvlStr)); err != nil {
		return 0, fmt.Errorf("parsing log level %q: %w", lvlStr, err)
	}
	return lvl, nil
}

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))
}

func New(cfg *Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Ctx == nil {
		cfg.Ctx = context.Background()
	}
	var replace func(groups []string, a slog.Attr) slog.Attr
	if cfg.AddSource {
		replace = func(groups []string, a slog.Attr) slog.Attr {
			// Remove the directory from the source's filename.
			if a.Key == slog.SourceKey {
				source := a.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return a
		}
	}

	var handler slog.Handler = slog.NewTextHandler(out, &slog.HandlerOptions{
		AddSource:   cfg.AddSource,
		Level:       cfg.Level,
		ReplaceAttr: replace,
	})

	if cfg.Hook.HookFunc != nil {
		handler = NewHookHandler(handler, cfg.Hook)
	}

	// Rate limiter goes last so dropped lines never reach the hook.
	var limiter *RateLimiterHandler
	if cfg.RateLimiter.Limit != 0 {
		limiter = NewRateLimiterHandler(cfg.Ctx, handler, cfg.RateLimiter)
		handler = limiter
	}

	return &Logger{log: slog.New(handler), limiter: limiter}
}

type Logger struct {
	log     *slog.Logger
	limiter *RateLimiterHandler
}

func (l *Logger) Error(msg string) {
	l.doLog(slog.LevelError, "%s", msg)
}

func (l *Logger) Errorf(format string, a ...any) {
	l.doLog(slog.LevelError, format, a...)
}

func (l *Logger) Infof(format string, a ...any) {
	l.doLog(slog.LevelInfo, format, a...)
}

func (l *Logger) Info(msg string) {
	l.doLog(slog.LevelInfo, "%s", msg)
}

func (l *Logger) Debug(msg string) {
	l.doLog(slog.LevelDebug, "%s", msg)
}

func (l *Logger) Debugf(format string, a ...any) {
	l.doLog(slog.LevelDebug, format, a...)
}

func (l *Logger) Warn(msg string) {
	l.doLog(slog.LevelWarn, "%s", msg)
}

func (l *Logger) Warnf(format string, a ...any) {
	l.doLog(slog.LevelWarn, format, a...)
}

func (l *Logger) IsEnabled(lvl slog.Level) bool {
	ctx := context.Background()
	return l.log.Handler().Enabled(ctx, lvl)
}

// Dropped returns how many lines the rate limiter suppressed so far.
func (l *Logger) Dropped() uint64 {
	if l.limiter == nil {
		return 0
	}
	var total uint64
	for _, n := range l.limiter.Dropped() {
		total += n
	}
	return total
}

func (l *Logger) doLog(lvl slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.log.Handler().Enabled(ctx, lvl) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	if len(args) > 0 {
		r := slog.NewRecord(time.Now(), lvl, fmt.Sprintf(msg, args...), pcs[0])
		_ = l.log.Handler().Handle(ctx, r) //nolint:contextcheck
	} else {
		r := slog.NewRecord(time.Now(), lvl, msg, pcs[0])
		_ = l.log.Handler().Handle(ctx, r) //nolint:contextcheck
	}
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{log: l.log.With(args...), limiter: l.limiter}
}

func (l *Logger) WithField(k, v string) *Logger {
	return &Logger{log: l.log.With(slog.String(k, v)), limiter: l.limiter}
}
