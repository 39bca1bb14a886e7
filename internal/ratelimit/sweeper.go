package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper launches a background goroutine that periodically removes
// stale limiter entries. It stops when ctx is cancelled.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := l.Sweep(); removed > 0 {
					slog.Debug("Rate limiter sweep complete", "removed", removed, "remaining", l.Len())
				}
			}
		}
	}()
}
