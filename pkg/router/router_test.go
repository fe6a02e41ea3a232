package router

import (
	"testing"

	"github.com/valyala/fasthttp"
)

func serve(r *Router, method, path string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(path)
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	r.Handler(ctx)
	return ctx
}

func TestRouting(t *testing.T) {
	r := New()
	var got string
	r.GET("/v1/chats/{counterpart}/messages", func(ctx *fasthttp.RequestCtx) {
		got = ctx.UserValue("counterpart").(string)
	})
	r.POST("/v1/chats/{counterpart}/messages", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusCreated)
	})
	r.DELETE("/v1/messages/{id}", func(*fasthttp.RequestCtx) {})

	cases := []struct {
		method, path string
		status       int
		allow        string
	}{
		{"GET", "/v1/chats/bob/messages", fasthttp.StatusOK, ""},
		{"GET", "/v1/chats/bob/messages/", fasthttp.StatusOK, ""},
		{"POST", "/v1/chats/bob/messages", fasthttp.StatusCreated, ""},
		{"PUT", "/v1/chats/bob/messages", fasthttp.StatusMethodNotAllowed, "GET, POST"},
		{"GET", "/v1/chats//messages", fasthttp.StatusNotFound, ""},
		{"GET", "/v1/nope", fasthttp.StatusNotFound, ""},
	}
	for _, tc := range cases {
		ctx := serve(r, tc.method, tc.path)
		if ctx.Response.StatusCode() != tc.status {
			t.Fatalf("%s %s: status %d, want %d", tc.method, tc.path, ctx.Response.StatusCode(), tc.status)
		}
		if allow := string(ctx.Response.Header.Peek("Allow")); allow != tc.allow {
			t.Fatalf("%s %s: Allow %q, want %q", tc.method, tc.path, allow, tc.allow)
		}
	}
	if got != "bob" {
		t.Fatalf("param = %q", got)
	}

	routes := r.Routes()
	if len(routes) != 3 || routes[0] != "DELETE /v1/messages/{id}" {
		t.Fatalf("routes %v", routes)
	}
}

func TestCustomFallbacks(t *testing.T) {
	r := New()
	r.GET("/x", func(*fasthttp.RequestCtx) {})
	r.NotFound(func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusTeapot) })
	r.MethodNotAllowed(func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusConflict) })

	if s := serve(r, "GET", "/y").Response.StatusCode(); s != fasthttp.StatusTeapot {
		t.Fatalf("not found handler: %d", s)
	}
	ctx := serve(r, "POST", "/x")
	if ctx.Response.StatusCode() != fasthttp.StatusConflict || string(ctx.Response.Header.Peek("Allow")) != "GET" {
		t.Fatalf("method handler: %d allow=%q", ctx.Response.StatusCode(), ctx.Response.Header.Peek("Allow"))
	}
}
