package logging

import (
	"context"
	"log/slog"
)

// HookFunc observes every record at or above HookConfig.MinLevel before it is written.
type HookFunc func(ctx context.Context, record slog.Record)

func NewHookHandler(next slog.Handler, cfg HookConfig) slog.Handler {
	return &HookHandler{
		next: next,
		cfg:  cfg,
	}
}

type HookHandler struct {
	next slog.Handler
	cfg  HookConfig
}

func (e *HookHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return e.next.Enabled(ctx, level)
}

func (e *HookHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= e.cfg.MinLevel {
		e.cfg.HookFunc(ctx, record)
	}

	return e.next.Handle(ctx, record)
}

func (e *HookHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &HookHandler{
		next: e.next.WithAttrs(attrs),
		cfg:  e.cfg,
	}
}

func (e *HookHandler) WithGroup(name string) slog.Handler {
	return &HookHandler{
		next: e.next.WithGroup(name),
		cfg:  e.cfg,
	}
}
