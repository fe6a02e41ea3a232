package utils

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// WSPath is the websocket upgrade endpoint. Browsers cannot set headers on
// upgrades, so credentials may also arrive as query params there.
const WSPath = "/v1/ws"

// ExtractAPIKey reads the key from "Authorization: Bearer", then X-API-Key,
// then the api_key query param on websocket upgrades.
func ExtractAPIKey(ctx *fasthttp.RequestCtx) string {
	if auth := GetHeader(ctx, "Authorization"); auth != "" {
		parts := strings.Fields(auth)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	if k := GetHeader(ctx, "X-API-Key"); k != "" {
		return k
	}
	if IsWSUpgrade(ctx) {
		return GetQuery(ctx, "api_key")
	}
	return ""
}

// GetUserID returns the claimed user id from X-User-ID, or ?user= on
// websocket upgrades.
func GetUserID(ctx *fasthttp.RequestCtx) string {
	if id := GetHeader(ctx, "X-User-ID"); id != "" {
		return id
	}
	if IsWSUpgrade(ctx) {
		return GetQuery(ctx, "user")
	}
	return ""
}

// GetUserSignature returns X-User-Signature, or ?sig= on websocket upgrades.
func GetUserSignature(ctx *fasthttp.RequestCtx) string {
	if sig := GetHeader(ctx, "X-User-Signature"); sig != "" {
		return sig
	}
	if IsWSUpgrade(ctx) {
		return GetQuery(ctx, "sig")
	}
	return ""
}

func IsWSUpgrade(ctx *fasthttp.RequestCtx) bool {
	return GetPath(ctx) == WSPath
}
