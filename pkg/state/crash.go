package state

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// WriteCrashDump writes reason, err and every goroutine stack to a new file
// in dir and returns its path.
func WriteCrashDump(dir, reason string, err error) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("crash dir not set")
	}
	if e := os.MkdirAll(dir, 0o700); e != nil {
		return "", fmt.Errorf("create crash dir: %w", e)
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("crash-%d.log", now.UnixNano()))
	f, ferr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if ferr != nil {
		return "", fmt.Errorf("create crash dump: %w", ferr)
	}
	defer f.Close()

	fmt.Fprintf(f, "time: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	if err != nil {
		fmt.Fprintf(f, "error: %v\n", err)
	}
	fmt.Fprintf(f, "go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	if _, werr := f.Write(buf[:n]); werr != nil {
		return path, werr
	}
	return path, nil
}
