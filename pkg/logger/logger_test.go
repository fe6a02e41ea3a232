package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAuditSinkWritesJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	if err := AttachAuditFileSink(dir); err != nil {
		t.Fatalf("attach: %v", err)
	}
	AuditEvent("retention_purge_complete", "purged", 3)
	Sync()
	if Audit != nil {
		t.Fatalf("Sync should detach the audit sink")
	}

	b, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"retention_purge_complete"`) || !strings.Contains(string(b), `"purged":3`) {
		t.Fatalf("audit log missing record: %s", b)
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	Log = nil
	Debug("x")
	Info("x", "k", 1)
	Warn("x")
	Error("x")
}
