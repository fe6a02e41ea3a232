package router

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/tracker"
)

// WriteJSON writes a 200 JSON response.
func WriteJSON(ctx *fasthttp.RequestCtx, data any) error {
	ctx.Response.Header.Set("Content-Type", "application/json")
	return json.NewEncoder(ctx).Encode(data)
}

// WriteJSONStatus writes a JSON response with the given status.
func WriteJSONStatus(ctx *fasthttp.RequestCtx, status int, data any) error {
	ctx.SetStatusCode(status)
	return WriteJSON(ctx, data)
}

// WriteJSONError writes {"error": message} with the given status.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(map[string]string{"error": message})
}

// WriteError maps a tracker error onto its HTTP status. Unexpected errors
// are logged and reported as 503 without their internals.
func WriteError(ctx *fasthttp.RequestCtx, err error) {
	status := StatusFor(err)
	if status == fasthttp.StatusServiceUnavailable {
		logger.Error("request_failed", "path", string(ctx.Path()), "error", err)
	}
	WriteJSONError(ctx, status, tracker.PublicMessage(err))
}

// StatusFor returns the HTTP status matching err's kind.
func StatusFor(err error) int {
	switch tracker.Code(err) {
	case "not_found":
		return fasthttp.StatusNotFound
	case "forbidden":
		return fasthttp.StatusForbidden
	case "invalid_argument":
		return fasthttp.StatusBadRequest
	}
	return fasthttp.StatusServiceUnavailable
}
