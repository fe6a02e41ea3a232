package utils

import (
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
)

// GetHeader returns header value with trimming
func GetHeader(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek(key)))
}

// GetQuery returns query parameter value with trimming
func GetQuery(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
}

// GetQueryBool reads 1/true/yes as true, anything else as def when absent.
func GetQueryBool(ctx *fasthttp.RequestCtx, key string, def bool) bool {
	v := strings.ToLower(GetQuery(ctx, key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v == "yes"
	}
	return b
}

func GetPath(ctx *fasthttp.RequestCtx) string {
	return string(ctx.Path())
}

func HasPathPrefix(ctx *fasthttp.RequestCtx, prefix string) bool {
	return strings.HasPrefix(GetPath(ctx), prefix)
}
