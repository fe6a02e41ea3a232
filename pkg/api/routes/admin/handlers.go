// Package admin serves operator endpoints under /admin.
package admin

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"chatrelay/internal/retention"
	"chatrelay/pkg/api/router"
	"chatrelay/pkg/api/utils"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/store"
	"chatrelay/pkg/timeutil"
)

type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// RetentionRunner runs one purge pass on demand.
type RetentionRunner interface {
	RunOnce(ctx context.Context, dryRun bool) (store.PurgeResult, error)
}

// Deps wires the admin handlers. Presence and Calls may be nil.
type Deps struct {
	Version   string
	Store     StatsSource
	Retention RetentionRunner
	Presence  interface{ Connections() int }
	Calls     interface{ Rooms() int }
	Started   time.Time
}

type Handlers struct {
	d Deps
}

func New(d Deps) *Handlers {
	if d.Started.IsZero() {
		d.Started = timeutil.Now()
	}
	return &Handlers{d: d}
}

type StatsResponse struct {
	store.Stats
	LiveConnections int    `json:"live_connections"`
	CallRooms       int    `json:"call_rooms"`
	Started         string `json:"started"`
}

func (h *Handlers) Health(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, map[string]string{"status": "ok", "service": "chatrelay", "version": h.d.Version})
}

func (h *Handlers) Stats(ctx *fasthttp.RequestCtx) {
	st, err := h.d.Store.Stats(ctx)
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "store unavailable")
		logger.Error("admin_stats_failed", "error", err)
		return
	}
	resp := StatsResponse{Stats: st, Started: humanize.Time(h.d.Started)}
	if h.d.Presence != nil {
		resp.LiveConnections = h.d.Presence.Connections()
	}
	if h.d.Calls != nil {
		resp.CallRooms = h.d.Calls.Rooms()
	}
	_ = router.WriteJSON(ctx, resp)
}

// RunRetention serves POST /admin/retention/run[?dry_run=true].
func (h *Handlers) RunRetention(ctx *fasthttp.RequestCtx) {
	if h.d.Retention == nil {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "retention not configured")
		return
	}
	dry := utils.GetQueryBool(ctx, "dry_run", false)
	res, err := h.d.Retention.RunOnce(ctx, dry)
	if errors.Is(err, retention.ErrBusy) {
		router.WriteJSONError(ctx, fasthttp.StatusConflict, err.Error())
		return
	}
	if err != nil {
		logger.Error("admin_retention_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, err.Error())
		return
	}
	logger.Info("admin_retention_run", "dry_run", dry, "removed", res.Total())
	_ = router.WriteJSON(ctx, res)
}
