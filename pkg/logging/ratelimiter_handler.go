package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const defaultInformInterval = 5 * time.Second

func NewRateLimiterHandler(ctx context.Context, next slog.Handler, cfg RateLimiterConfig) *RateLimiterHandler {
	levels := []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

	h := &RateLimiterHandler{
		next:                next,
		rt:                  make(map[slog.Level]*rate.Limiter, len(levels)),
		droppedLogsCounters: make(map[slog.Level]*atomic.Uint64, len(levels)),
		droppedTotal:        make(map[slog.Level]*atomic.Uint64, len(levels)),
	}
	for _, lvl := range levels {
		h.rt[lvl] = rate.NewLimiter(cfg.Limit, cfg.Burst)
		h.droppedLogsCounters[lvl] = &atomic.Uint64{}
		h.droppedTotal[lvl] = &atomic.Uint64{}
	}

	if cfg.Inform {
		interval := cfg.InformInterval
		if interval <= 0 {
			interval = defaultInformInterval
		}
		go h.printDroppedLogsCounter(ctx, interval)
	}
	return h
}

type RateLimiterHandler struct {
	next                slog.Handler
	rt                  map[slog.Level]*rate.Limiter
	droppedLogsCounters map[slog.Level]*atomic.Uint64
	droppedTotal        map[slog.Level]*atomic.Uint64
}

func (s *RateLimiterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if !s.next.Enabled(ctx, level) {
		return false
	}
	rt, found := s.rt[level]
	if !found {
		return true
	}
	if !rt.Allow() {
		s.droppedLogsCounters[level].Add(1)
		s.droppedTotal[level].Add(1)
		return false
	}
	return true
}

func (s *RateLimiterHandler) Handle(ctx context.Context, record slog.Record) error {
	return s.next.Handle(ctx, record)
}

func (s *RateLimiterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RateLimiterHandler{
		next:                s.next.WithAttrs(attrs),
		rt:                  s.rt,
		droppedLogsCounters: s.droppedLogsCounters,
		droppedTotal:        s.droppedTotal,
	}
}

func (s *RateLimiterHandler) WithGroup(name string) slog.Handler {
	return &RateLimiterHandler{
		next:                s.next.WithGroup(name),
		rt:                  s.rt,
		droppedLogsCounters: s.droppedLogsCounters,
		droppedTotal:        s.droppedTotal,
	}
}

// Dropped returns the number of suppressed lines per level since the handler was created.
func (s *RateLimiterHandler) Dropped() map[slog.Level]uint64 {
	res := make(map[slog.Level]uint64, len(s.droppedTotal))
	for lvl, n := range s.droppedTotal {
		res[lvl] = n.Load()
	}
	return res
}

func (s *RateLimiterHandler) printDroppedLogsCounter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for level, val := range s.droppedLogsCounters {
				count := val.Swap(0)
				if count > 0 {
					r := slog.NewRecord(time.Now(), slog.LevelWarn, fmt.Sprintf("logs rate limit, dropped %d lines for level %s", count, level.String()), 0)
					_ = s.next.Handle(ctx, r)
				}
			}
		}
	}
}
