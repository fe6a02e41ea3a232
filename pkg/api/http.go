// Package api assembles the HTTP surface: routes, the auth gate, and the
// prometheus and pprof endpoints.
package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"chatrelay/pkg/api/auth"
	"chatrelay/pkg/api/router"
	adminRoutes "chatrelay/pkg/api/routes/admin"
	backendRoutes "chatrelay/pkg/api/routes/backend"
	frontendRoutes "chatrelay/pkg/api/routes/frontend"
	"chatrelay/pkg/api/utils"
	baserouter "chatrelay/pkg/router"
)

// Routes bundles the handler sets mounted by RegisterRoutes.
type Routes struct {
	Frontend *frontendRoutes.Handlers
	Backend  *backendRoutes.Handlers
	Admin    *adminRoutes.Handlers
	// Healthz and Readyz are mounted when set.
	Healthz fasthttp.RequestHandler
	Readyz  fasthttp.RequestHandler
}

func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

// RegisterRoutes wires all API routes onto r.
func RegisterRoutes(r *baserouter.Router, rt Routes) {
	if rt.Healthz != nil {
		r.GET("/healthz", rt.Healthz)
	}
	if rt.Readyz != nil {
		r.GET("/readyz", rt.Readyz)
	}
	r.GET("/metrics", wrapHTTPHandler(promhttp.Handler()))

	fe := rt.Frontend
	r.GET(utils.WSPath, fe.Connect)
	r.GET("/v1/chats/{counterpart}/messages", fe.ChatHistory)
	r.POST("/v1/chats/{counterpart}/messages", fe.SendChat)
	r.POST("/v1/messages/read", fe.MarkRead)
	r.DELETE("/v1/messages/{id}", fe.DeleteMessage)
	r.PUT("/v1/messages/{id}/hide", fe.HideMessage)
	r.GET("/v1/groups/{groupId}/messages", fe.GroupHistory)
	r.POST("/v1/groups/{groupId}/messages", fe.SendGroup)
	r.POST("/v1/group-messages/read", fe.MarkGroupRead)
	r.GET("/v1/unread", fe.Unread)
	r.GET("/v1/users", fe.FindUser)

	be := rt.Backend
	r.POST("/v1/users", be.RegisterUser)
	r.POST("/v1/groups", be.CreateGroup)
	r.GET("/v1/groups/{groupId}", be.GetGroup)
	r.POST("/v1/_sign", be.Sign)

	ad := rt.Admin
	r.GET("/admin/health", ad.Health)
	r.GET("/admin/stats", ad.Stats)
	r.POST("/admin/retention/run", ad.RunRetention)

	r.GET("/admin/debug/pprof", wrapHTTPHandler(http.HandlerFunc(pprof.Index)))
	r.GET("/admin/debug/pprof/cmdline", wrapHTTPHandler(http.HandlerFunc(pprof.Cmdline)))
	r.GET("/admin/debug/pprof/profile", wrapHTTPHandler(http.HandlerFunc(pprof.Profile)))
	r.GET("/admin/debug/pprof/symbol", wrapHTTPHandler(http.HandlerFunc(pprof.Symbol)))
	r.GET("/admin/debug/pprof/trace", wrapHTTPHandler(http.HandlerFunc(pprof.Trace)))

	notFound := func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
	})
}

// Handler returns the authenticated fasthttp handler for rt.
func Handler(gate *auth.Gate, rt Routes) fasthttp.RequestHandler {
	r := baserouter.New()
	RegisterRoutes(r, rt)
	return gate.Middleware(r.Handler)
}
