package router

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"

	"chatrelay/pkg/telemetry"
)

// PathParam returns a {name} segment captured by the router.
func PathParam(ctx *fasthttp.RequestCtx, param string) string {
	if v := ctx.UserValue(param); v != nil {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return fmt.Sprint(v)
	}
	return ""
}

func ValidatePathParam(ctx *fasthttp.RequestCtx, param string) (string, bool) {
	value := PathParam(ctx, param)
	if value == "" {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, param+" missing")
		return "", false
	}
	return value, true
}

// DecodeBody unmarshals the request body into v and writes a 400 on failure.
func DecodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		WriteValidationError(ctx, &ValidationError{Field: "body", Message: "request body is required"})
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		WriteValidationError(ctx, &ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)})
		return false
	}
	return true
}

// CurrentUser returns the identity the auth middleware attached to ctx.
func CurrentUser(ctx *fasthttp.RequestCtx) string {
	if v, ok := ctx.UserValue("user").(string); ok {
		return v
	}
	return ""
}

// SetupHandler starts a trace for op and resolves the caller. It writes a
// 401 and returns false when the request carries no user identity.
func SetupHandler(ctx *fasthttp.RequestCtx, op string) (string, *telemetry.Trace, bool) {
	user := CurrentUser(ctx)
	if user == "" {
		WriteJSONError(ctx, fasthttp.StatusUnauthorized, "user identity required")
		return "", nil, false
	}
	return user, telemetry.Track("api." + op), true
}
