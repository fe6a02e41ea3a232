package sensor

import (
	"testing"
	"time"
)

func TestStatfsReportsTheVolume(t *testing.T) {
	u, err := Statfs(t.TempDir())
	if err != nil {
		t.Fatalf("statfs: %v", err)
	}
	if u.Total == 0 || u.Free > u.Total {
		t.Fatalf("implausible sample %+v", u)
	}
	if u.UsedPct < 0 || u.UsedPct > 100 {
		t.Fatalf("used pct out of range: %f", u.UsedPct)
	}
}

func TestAlertHysteresis(t *testing.T) {
	s := NewSensor(MonitorConfig{DiskHighPct: 90, DiskLowPct: 80})
	steps := []struct {
		used float64
		want bool
	}{
		{50, false},
		{91, true},
		{85, true}, // between the marks: stays raised
		{79, false},
		{85, false},
	}
	for i, st := range steps {
		s.observe(DiskUsage{Total: 100, Free: uint64(100 - st.used), UsedPct: st.used})
		if got := s.Alerting(); got != st.want {
			t.Fatalf("step %d (%.0f%%): alerting=%v, want %v", i, st.used, got, st.want)
		}
	}
	if s.Last().UsedPct != 85 {
		t.Fatalf("last sample not kept")
	}
}

func TestStartStop(t *testing.T) {
	s := NewSensor(MonitorConfig{Path: t.TempDir(), PollInterval: 10 * time.Millisecond, DiskHighPct: 100, DiskLowPct: 99})
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop()
	if s.Last().Total == 0 {
		t.Fatalf("no sample taken")
	}
}
