package telemetry

import (
	"math"
	"testing"
	"time"

	"chatrelay/pkg/timeutil"
)

func TestTraceSteps(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	restore := timeutil.SetClock(func() time.Time { return now })
	defer restore()

	tr := Track("tracker.send")
	now = now.Add(4 * time.Millisecond)
	tr.Mark("persist")
	now = now.Add(6 * time.Millisecond)
	tr.Finish()
	tr.Finish()

	if !near(tr.TotalMS, 10) {
		t.Fatalf("total %.3fms, want 10", tr.TotalMS)
	}
	if len(tr.Steps) != 2 {
		t.Fatalf("steps %+v, want persist and unmarked", tr.Steps)
	}
	if tr.Steps[0].Name != "persist" || !near(tr.Steps[0].Duration, 4) {
		t.Fatalf("first step %+v", tr.Steps[0])
	}
	if tr.Steps[1].Name != "unmarked" || !near(tr.Steps[1].Duration, 6) {
		t.Fatalf("second step %+v", tr.Steps[1])
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }
