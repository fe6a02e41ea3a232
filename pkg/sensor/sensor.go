// Package sensor polls the database volume and publishes its usage.
package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/metrics"
)

type MonitorConfig struct {
	// Path is any file or directory on the watched volume.
	Path         string
	PollInterval time.Duration
	DiskHighPct  int
	DiskLowPct   int
}

// DiskUsage is one statfs sample.
type DiskUsage struct {
	Total   uint64
	Free    uint64
	UsedPct float64
}

type Sensor struct {
	cfg      MonitorConfig
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.Mutex
	diskAlert bool
	last      DiskUsage
}

func NewSensor(cfg MonitorConfig) *Sensor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &Sensor{cfg: cfg, stopCh: make(chan struct{})}
}

func (s *Sensor) Start() {
	s.check()
	s.wg.Add(1)
	go s.run()
}

// Stop halts polling and waits for the loop to exit.
func (s *Sensor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Last returns the most recent sample.
func (s *Sensor) Last() DiskUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Alerting reports whether usage is above the high watermark and has not
// yet dropped below the low one.
func (s *Sensor) Alerting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diskAlert
}

func (s *Sensor) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.check()
		case <-s.stopCh:
			return
		}
	}
}

// Statfs samples the volume holding path.
func Statfs(path string) (DiskUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	total := st.Blocks * uint64(st.Bsize)
	free := st.Bavail * uint64(st.Bsize)
	u := DiskUsage{Total: total, Free: free}
	if total > 0 {
		u.UsedPct = float64(total-free) / float64(total) * 100
	}
	return u, nil
}

func (s *Sensor) check() {
	u, err := Statfs(s.cfg.Path)
	if err != nil {
		logger.Warn("disk_stat_failed", "path", s.cfg.Path, "error", err)
		return
	}
	s.observe(u)
}

// observe records a sample and flips the alert with hysteresis.
func (s *Sensor) observe(u DiskUsage) {
	metrics.DiskUsedPct.Set(u.UsedPct)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = u
	switch {
	case !s.diskAlert && u.UsedPct > float64(s.cfg.DiskHighPct):
		s.diskAlert = true
		logger.Warn("disk_usage_high", "used_pct", fmt.Sprintf("%.1f", u.UsedPct), "free", humanize.Bytes(u.Free), "threshold", s.cfg.DiskHighPct)
	case s.diskAlert && u.UsedPct < float64(s.cfg.DiskLowPct):
		s.diskAlert = false
		logger.Info("disk_usage_recovered", "used_pct", fmt.Sprintf("%.1f", u.UsedPct), "free", humanize.Bytes(u.Free))
	}
}
