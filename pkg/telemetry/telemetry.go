// Package telemetry times operations step by step. A finished trace feeds the
// op latency histogram and, when slow, is logged with its steps.
package telemetry

import (
	"sync/atomic"
	"time"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/metrics"
	"chatrelay/pkg/timeutil"
)

type Step struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

type Trace struct {
	Name     string
	Start    time.Time
	Steps    []Step
	TotalMS  float64
	lastMark time.Time
	done     bool
}

var slowThreshold atomic.Int64

func init() {
	slowThreshold.Store(int64(250 * time.Millisecond))
}

// SetSlowThreshold changes the latency above which traces are logged.
func SetSlowThreshold(d time.Duration) {
	slowThreshold.Store(int64(d))
}

// Track starts a new trace.
func Track(name string) *Trace {
	now := timeutil.Now()
	return &Trace{Name: name, Start: now, lastMark: now}
}

// Mark records the elapsed duration since last mark.
func (tr *Trace) Mark(label string) {
	now := timeutil.Now()
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: now.Sub(tr.lastMark).Seconds() * 1000})
	tr.lastMark = now
}

// Finish observes the trace. Safe to call multiple times or via defer.
func (tr *Trace) Finish() {
	if tr.done {
		return
	}
	tr.done = true
	total := timeutil.Now().Sub(tr.Start)
	tr.TotalMS = total.Seconds() * 1000

	var sum float64
	for _, s := range tr.Steps {
		sum += s.Duration
	}
	if remaining := tr.TotalMS - sum; remaining > 0.001 {
		tr.Steps = append(tr.Steps, Step{Name: "unmarked", Duration: remaining})
	}

	metrics.OpDuration.WithLabelValues(tr.Name).Observe(total.Seconds())
	if total >= time.Duration(slowThreshold.Load()) {
		logger.Warn("slow_operation", "op", tr.Name, "total_ms", tr.TotalMS, "steps", tr.Steps)
	}
}
