package logger

import (
	"strings"
	"unicode/utf8"

	"github.com/valyala/fasthttp"
)

var sensitiveHeaders = map[string]bool{
	"authorization":    true,
	"x-api-key":        true,
	"x-user-signature": true,
	"cookie":           true,
}

var sensitiveQuery = map[string]bool{
	"api_key": true,
	"sig":     true,
}

func maskedValue(v string) string {
	if v == "" {
		return ""
	}
	if utf8.RuneCountInString(v) <= 2 {
		return "<redacted>"
	}
	first, _ := utf8.DecodeRuneInString(v)
	last, _ := utf8.DecodeLastRuneInString(v)
	return string(first) + "*****" + string(last)
}

func redactHeaderValue(key, v string) string {
	if sensitiveHeaders[strings.ToLower(key)] {
		return maskedValue(v)
	}
	return v
}

// SafeHeadersFast builds a redacted header string for fasthttp requests.
func SafeHeadersFast(ctx *fasthttp.RequestCtx) string {
	parts := make([]string, 0)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		parts = append(parts, key+"="+redactHeaderValue(key, string(v)))
	})
	return strings.Join(parts, "; ")
}

// SafeQueryFast renders the query string with credentials masked.
func SafeQueryFast(ctx *fasthttp.RequestCtx) string {
	parts := make([]string, 0)
	ctx.QueryArgs().VisitAll(func(k, v []byte) {
		key := string(k)
		val := string(v)
		if sensitiveQuery[strings.ToLower(key)] {
			val = maskedValue(val)
		}
		parts = append(parts, key+"="+val)
	})
	return strings.Join(parts, "&")
}

// LogRequestFast logs a concise, safe summary of an incoming fasthttp request.
func LogRequestFast(ctx *fasthttp.RequestCtx) {
	if Log == nil {
		return
	}
	Debug("incoming_request",
		"method", string(ctx.Method()),
		"path", string(ctx.Path()),
		"query", SafeQueryFast(ctx),
		"remote", ctx.RemoteAddr().String(),
		"headers", SafeHeadersFast(ctx),
	)
}
