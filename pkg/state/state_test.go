package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitCreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "db")
	p, err := Init(root)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, dir := range []string{p.Store, p.Audit, p.Retention, p.Tmp, p.Crash} {
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() {
			t.Fatalf("%s missing: %v", dir, err)
		}
	}
	if p.SQLitePath() != filepath.Join(root, "store", "chatrelay.db") {
		t.Fatalf("unexpected sqlite path %s", p.SQLitePath())
	}
}

func TestRejectsSymlinkedDirs(t *testing.T) {
	root := t.TempDir()
	p := PathsFor(root)
	if err := os.Symlink(t.TempDir(), p.Store); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := EnsureStateDirs(p); err == nil || !strings.Contains(err.Error(), "symlink") {
		t.Fatalf("expected symlink rejection, got %v", err)
	}
}

func TestWriteCrashDump(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteCrashDump(dir, "store_open_failed", errors.New("boom"))
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	for _, want := range []string{"reason: store_open_failed", "error: boom", "goroutine"} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("dump lacks %q", want)
		}
	}
	if _, err := WriteCrashDump("", "x", nil); err == nil {
		t.Fatalf("empty dir should fail")
	}
}
