// Package app wires the storage engine, tracker, gateway and HTTP surface
// into one process and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"chatrelay/internal/retention"
	"chatrelay/pkg/api/auth"
	"chatrelay/pkg/config"
	"chatrelay/pkg/gateway"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/sensor"
	"chatrelay/pkg/signaling"
	"chatrelay/pkg/state"
	"chatrelay/pkg/store"
	"chatrelay/pkg/store/pebblestore"
	"chatrelay/pkg/store/sqlstore"
	"chatrelay/pkg/timeutil"
	"chatrelay/pkg/tracker"
)

// engine is what both storage backends provide.
type engine interface {
	tracker.Store
	retention.Purger
	Stats(ctx context.Context) (store.Stats, error)
	Ready() error
	Close() error
}

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	paths     state.Paths
	version   string
	commit    string
	buildDate string
	started   time.Time

	store     engine
	hub       *gateway.Hub
	tracker   *tracker.Tracker
	relay     *signaling.Relay
	ws        *gateway.Server
	retention *retention.Manager
	hwSensor  *sensor.Sensor
	gate      *auth.Gate
	handler   fasthttp.RequestHandler

	srvFast         *fasthttp.Server
	retentionCancel context.CancelFunc
	state           string
}

// New opens the store and builds every component. Nothing is started; Run
// does that.
func New(eff config.EffectiveConfigResult, paths state.Paths, version, commit, buildDate string) (*App, error) {
	if err := config.ValidateConfig(&eff); err != nil {
		return nil, err
	}
	cfg := eff.Config

	if err := logger.AttachAuditFileSink(paths.Audit); err != nil {
		logger.Warn("audit_sink_unavailable", "dir", paths.Audit, "error", err)
	}

	st, err := openEngine(cfg.Storage, paths)
	if err != nil {
		return nil, err
	}

	a := &App{
		eff:       eff,
		paths:     paths,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		started:   timeutil.Now(),
		store:     st,
		state:     "initialized",
	}

	a.hub = gateway.NewHub()
	a.tracker = tracker.New(st, a.hub)
	a.relay = signaling.New(a.hub)
	a.hub.OnLeave(func(c *gateway.Conn) { a.relay.Disconnect(c.ID()) })

	a.gate = auth.NewGate(secConfig(cfg))
	opts := gateway.OptionsFromConfig(cfg.Gateway)
	if len(cfg.Security.CORS.AllowedOrigins) > 0 {
		opts.CheckOrigin = a.gate.CheckOrigin
	}
	a.ws = gateway.NewServer(a.hub, gateway.NewDispatcher(a.hub, a.tracker, a.relay), opts)

	a.retention = retention.NewManager(st, cfg.Retention, paths.Retention)
	a.hwSensor = sensor.NewSensor(sensor.MonitorConfig{
		Path:         paths.Store,
		PollInterval: cfg.Sensor.PollInterval.Duration(),
		DiskHighPct:  cfg.Sensor.DiskHighPct,
		DiskLowPct:   cfg.Sensor.DiskLowPct,
	})
	a.handler = a.buildHandler()
	return a, nil
}

func openEngine(sc config.StorageConfig, paths state.Paths) (engine, error) {
	switch sc.Engine {
	case config.EngineSQLite:
		st, err := sqlstore.Open(paths.SQLitePath(), sc.Sync())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite at %s: %w", paths.SQLitePath(), err)
		}
		return st, nil
	default:
		st, err := pebblestore.Open(paths.Store, sc.Sync())
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble at %s: %w", paths.Store, err)
		}
		return st, nil
	}
}

func secConfig(cfg *config.Config) auth.SecConfig {
	sec := cfg.Security
	return auth.SecConfig{
		AllowedOrigins: append([]string{}, sec.CORS.AllowedOrigins...),
		RPS:            sec.RateLimit.RPS,
		Burst:          sec.RateLimit.Burst,
		IPWhitelist:    append([]string{}, sec.IPWhitelist...),
		BackendKeys:    config.KeySet(sec.APIKeys.Backend),
		FrontendKeys:   config.KeySet(sec.APIKeys.Frontend),
		AdminKeys:      config.KeySet(sec.APIKeys.Admin),
		SigningKeys:    config.KeySet(sec.APIKeys.Backend),
	}
}

// Run starts background loops and the HTTP server, then blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	a.retentionCancel = retention.Start(ctx, a.retention)
	a.hwSensor.Start()

	errCh := a.startHTTP()
	a.state = "running"
	logger.Info("server_started", "addr", a.eff.Addr, "engine", a.eff.Config.Storage.Engine)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler is the full authenticated HTTP handler.
func (a *App) Handler() fasthttp.RequestHandler {
	return a.handler
}
