// Package shutdown orders component teardown and handles fatal exits.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/state"
)

// Step is one teardown action. Fn may be nil, in which case it is skipped.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Run executes steps in order. A failing step is logged and does not stop
// later ones; all failures are joined into the result.
func Run(ctx context.Context, steps ...Step) error {
	logger.Info("shutdown_requested")
	var errs []error
	for _, s := range steps {
		if s.Fn == nil {
			continue
		}
		logger.Info("shutdown_step", "step", s.Name)
		if err := s.Fn(ctx); err != nil {
			logger.Error("shutdown_step_failed", "step", s.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	logger.Info("shutdown_complete", "failed_steps", len(errs))
	return errors.Join(errs...)
}

// CrashDir is where Abort writes crash dumps. Empty disables dumps.
var CrashDir string

// Abort logs a fatal startup or runtime error, writes a crash dump, flushes
// logs and exits with status 1.
func Abort(msg string, err error) {
	logger.Error(msg, "error", err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	if CrashDir != "" {
		if path, derr := state.WriteCrashDump(CrashDir, msg, err); derr == nil {
			fmt.Fprintf(os.Stderr, "crash dump written to %s\n", path)
		}
	}
	logger.Sync()
	os.Exit(1)
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// SIGPIPE dumps goroutine stacks first.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE)
	go func() {
		defer signal.Stop(sigc)
		select {
		case s := <-sigc:
			if s == syscall.SIGPIPE {
				buf := make([]byte, 1<<20)
				n := runtime.Stack(buf, true)
				logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
			}
			logger.Info("signal_received", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
