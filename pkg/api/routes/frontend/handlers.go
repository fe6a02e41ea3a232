// Package frontend serves the user-scoped HTTP surface: history, unread
// counts, lookups, the mutations mirroring the websocket events, and the
// websocket upgrade itself.
package frontend

import (
	"github.com/valyala/fasthttp"

	"chatrelay/pkg/tracker"
)

// Upgrader takes over an authenticated request as a websocket.
type Upgrader interface {
	Serve(ctx *fasthttp.RequestCtx, userID string)
}

type Handlers struct {
	tr *tracker.Tracker
	ws Upgrader
}

func New(tr *tracker.Tracker, ws Upgrader) *Handlers {
	return &Handlers{tr: tr, ws: ws}
}
