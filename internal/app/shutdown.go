package app

import (
	"context"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/state/shutdown"
)

// Shutdown stops accepting requests, drops live connections, stops the
// background loops and closes the store, in that order.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	err := shutdown.Run(ctx,
		shutdown.Step{Name: "http", Fn: a.stopHTTP},
		shutdown.Step{Name: "gateway", Fn: func(context.Context) error {
			a.ws.Close()
			return nil
		}},
		shutdown.Step{Name: "retention", Fn: func(context.Context) error {
			if a.retentionCancel != nil {
				a.retentionCancel()
			}
			return nil
		}},
		shutdown.Step{Name: "sensor", Fn: func(context.Context) error {
			a.hwSensor.Stop()
			return nil
		}},
		shutdown.Step{Name: "auth", Fn: func(context.Context) error {
			a.gate.Close()
			return nil
		}},
		shutdown.Step{Name: "store", Fn: func(context.Context) error {
			return a.store.Close()
		}},
	)
	if err == nil {
		a.state = "stopped"
	}
	logger.Info("app_state", "state", a.state)
	return err
}

func (a *App) stopHTTP(ctx context.Context) error {
	if a.srvFast == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- a.srvFast.Shutdown() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
