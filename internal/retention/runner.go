package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/metrics"
	"chatrelay/pkg/store"
	"chatrelay/pkg/timeutil"
)

var (
	// ErrBusy is returned when a pass is already running in this process or
	// another process holds the lease.
	ErrBusy = errors.New("retention: a purge pass is already running")
)

const maxConsecutiveRenewFails = 3

// Purger is the store side of a retention pass.
type Purger interface {
	Purge(ctx context.Context, opts store.PurgeOptions) (store.PurgeResult, error)
}

// Manager runs purge passes against one store, serialized in-process by a
// flag and across processes by a file lease.
type Manager struct {
	store Purger
	cfg   config.RetentionConfig
	lease *fileLease

	mu      sync.Mutex
	running bool
}

// NewManager keeps its lease file in dir (the retention state dir).
func NewManager(st Purger, cfg config.RetentionConfig, dir string) *Manager {
	return &Manager{store: st, cfg: cfg, lease: newFileLease(dir)}
}

func (m *Manager) cutoff() (int64, error) {
	if m.cfg.Period == "" {
		return 0, nil
	}
	p, err := config.ParsePeriod(m.cfg.Period)
	if err != nil {
		return 0, fmt.Errorf("invalid retention period: %w", err)
	}
	return timeutil.Now().Add(-p).UnixNano(), nil
}

// RunOnce runs a single pass. dryRun is OR-ed with the configured dry_run.
func (m *Manager) RunOnce(ctx context.Context, dryRun bool) (store.PurgeResult, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return store.PurgeResult{}, ErrBusy
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	ttl := m.cfg.LockTTL.Duration()
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	owner := uuid.NewString()
	ok, err := m.lease.Acquire(owner, ttl)
	if err != nil {
		return store.PurgeResult{}, fmt.Errorf("lease acquire failed: %w", err)
	}
	if !ok {
		return store.PurgeResult{}, ErrBusy
	}
	defer func() {
		if err := m.lease.Release(owner); err != nil {
			logger.Error("retention_lease_release_failed", "owner", owner, "error", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.heartbeat(runCtx, cancel, owner, ttl)

	before, err := m.cutoff()
	if err != nil {
		return store.PurgeResult{}, err
	}
	opts := store.PurgeOptions{Before: before, DryRun: dryRun || m.cfg.DryRun}

	logger.AuditEvent("retention_run_start", "owner", owner, "dry_run", opts.DryRun, "period", m.cfg.Period)
	res, err := m.store.Purge(runCtx, opts)
	if err != nil {
		logger.AuditEvent("retention_run_failed", "owner", owner, "error", err.Error())
		return res, fmt.Errorf("purge: %w", err)
	}
	if !res.DryRun {
		metrics.RetentionPurged.Add(float64(res.Total()))
	}
	logger.AuditEvent("retention_run_complete", "owner", owner, "dry_run", res.DryRun,
		"hidden_by_both", res.HiddenByBoth, "expired", res.Expired, "group_expired", res.GroupExpired)
	return res, nil
}

// heartbeat renews the lease every ttl/3 and aborts the run after repeated
// renew failures.
func (m *Manager) heartbeat(ctx context.Context, abort context.CancelFunc, owner string, ttl time.Duration) {
	t := time.NewTicker(ttl / 3)
	defer t.Stop()
	fails := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := m.lease.Renew(owner, ttl); err != nil {
				fails++
				logger.Error("retention_lease_renew_failed", "error", err, "count", fails)
				if fails >= maxConsecutiveRenewFails {
					abort()
					return
				}
				continue
			}
			fails = 0
		}
	}
}
