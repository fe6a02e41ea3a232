// Package retention purges messages on a cron schedule: messages hidden by
// both parties, and messages older than the configured period.
package retention

import (
	"context"
	"errors"
	"time"

	"github.com/adhocore/gronx"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/timeutil"
)

// Start runs m on its cron schedule until the returned cancel is called or
// ctx ends. A disabled config starts nothing.
func Start(ctx context.Context, m *Manager) context.CancelFunc {
	if !m.cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("retention_enabled", "cron", m.cfg.Cron, "period", m.cfg.Period, "dry_run", m.cfg.DryRun)
	go m.scheduleLoop(ctx)
	return cancel
}

func (m *Manager) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(m.cfg.Cron, timeutil.Now(), false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", m.cfg.Cron, "error", err)
			if !sleep(ctx, 30*time.Second) {
				return
			}
			continue
		}
		if !sleep(ctx, time.Until(next)) {
			return
		}
		res, err := m.RunOnce(ctx, false)
		switch {
		case errors.Is(err, ErrBusy):
			logger.Info("retention_skipped_busy")
		case err != nil:
			logger.Error("retention_run_failed", "error", err)
		default:
			logger.Info("retention_run_complete", "removed", res.Total(), "dry_run", res.DryRun)
		}
		// cron has minute resolution; avoid firing twice in the same tick
		if !sleep(ctx, time.Second) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
