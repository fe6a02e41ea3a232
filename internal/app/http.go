package app

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"chatrelay/pkg/api"
	"chatrelay/pkg/api/router"
	adminRoutes "chatrelay/pkg/api/routes/admin"
	backendRoutes "chatrelay/pkg/api/routes/backend"
	frontendRoutes "chatrelay/pkg/api/routes/frontend"
	"chatrelay/pkg/config"
	"chatrelay/pkg/config/banner"
	"chatrelay/pkg/logger"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" && a.commit != "" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)

	cfg := a.eff.Config
	logger.LogConfigSummary("config_summary", []string{
		fmt.Sprintf("engine: %s", cfg.Storage.Engine),
		fmt.Sprintf("sync_writes: %t", cfg.Storage.Sync()),
		fmt.Sprintf("max_request_body: %s", humanize.Bytes(uint64(cfg.Server.MaxRequestBody))),
		fmt.Sprintf("ws_send_buffer: %s", humanize.Comma(int64(cfg.Gateway.SendBuffer))),
		fmt.Sprintf("ws_max_message: %s", cfg.Gateway.MaxMessageSize),
		fmt.Sprintf("rate_limit: %.0f rps burst %d", cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst),
		fmt.Sprintf("retention: enabled=%t cron=%q period=%q", cfg.Retention.Enabled, cfg.Retention.Cron, cfg.Retention.Period),
	})
}

func (a *App) buildHandler() fasthttp.RequestHandler {
	signing := config.KeySet(a.eff.Config.Security.APIKeys.Backend)
	return api.Handler(a.gate, api.Routes{
		Frontend: frontendRoutes.New(a.tracker, a.ws),
		Backend:  backendRoutes.New(a.tracker, signing),
		Admin: adminRoutes.New(adminRoutes.Deps{
			Version:   a.version,
			Store:     a.store,
			Retention: a.retention,
			Presence:  a.hub,
			Calls:     a.relay,
			Started:   a.started,
		}),
		Healthz: a.healthz,
		Readyz:  a.readyz,
	})
}

func (a *App) healthz(ctx *fasthttp.RequestCtx) {
	router.WriteJSON(ctx, map[string]string{"status": "ok"})
}

// readyz fails while the store cannot serve reads or the disk is past its
// high-water mark.
func (a *App) readyz(ctx *fasthttp.RequestCtx) {
	if err := a.store.Ready(); err != nil {
		router.WriteJSONStatus(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	if a.hwSensor.Alerting() {
		router.WriteJSONStatus(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "disk nearly full"})
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	router.WriteJSON(ctx, map[string]string{"status": "ok", "version": ver})
}

// startHTTP builds and starts the fasthttp server, returning a channel that
// delivers its exit error.
func (a *App) startHTTP() <-chan error {
	cfg := a.eff.Config
	const (
		readBufferSize       = 64 * 1024
		readTimeout          = 10 * time.Second
		writeTimeout         = 10 * time.Second
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	a.srvFast = &fasthttp.Server{
		Name:                 "chatrelay",
		Handler:              a.handler,
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   int(cfg.Server.MaxRequestBody),
		ReduceMemoryUsage:    true,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		tls := cfg.Server.TLS
		if tls.CertFile != "" {
			errCh <- a.srvFast.ListenAndServeTLS(a.eff.Addr, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}
