package auth

import (
	"net"
	"strings"

	"github.com/valyala/fasthttp"

	"chatrelay/pkg/api/router"
	"chatrelay/pkg/api/utils"
	"chatrelay/pkg/logger"
)

// Gate authenticates every request before it reaches the router: CORS,
// IP whitelist, API key role, route scope, per-key rate limit, then user
// identity.
type Gate struct {
	cfg      SecConfig
	limiters *limiterPool
}

func NewGate(cfg SecConfig) *Gate {
	return &Gate{cfg: cfg, limiters: newLimiterPool(cfg.RPS, cfg.Burst)}
}

// Close stops the limiter eviction loop.
func (g *Gate) Close() {
	g.limiters.Shutdown()
}

func (g *Gate) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	cfg := g.cfg
	return func(ctx *fasthttp.RequestCtx) {
		logger.LogRequestFast(ctx)

		origin := utils.GetHeader(ctx, "Origin")
		if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
			ctx.Response.Header.Set("Vary", "Origin")
			ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			ctx.Response.Header.Set("Access-Control-Max-Age", "600")
			ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID,X-User-Signature")
			ctx.Response.Header.Set("Access-Control-Expose-Headers", "X-Role-Name")
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		if len(cfg.IPWhitelist) > 0 {
			ip := clientIP(ctx)
			if !ipWhitelisted(ip, cfg.IPWhitelist) {
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
				logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", utils.GetPath(ctx))
				return
			}
		}

		if publicAllowedPath(ctx) {
			ctx.Request.Header.Set("X-Role-Name", RoleUnauth.String())
			next(ctx)
			return
		}

		role, key := validateAPIKey(ctx, cfg)
		if role == RoleUnauth {
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			logger.Warn("request_unauthorized", "path", utils.GetPath(ctx), "remote", ctx.RemoteAddr().String())
			return
		}
		ctx.Request.Header.Set("X-Role-Name", role.String())

		if reason := scopeViolation(ctx, role); reason != "" {
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, reason)
			logger.Warn("request_forbidden", "role", role.String(), "path", utils.GetPath(ctx), "reason", reason)
			return
		}

		if !g.limiters.Allow(key) {
			router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			logger.Warn("rate_limited", "role", role.String(), "path", utils.GetPath(ctx))
			return
		}

		user, ierr := resolveUser(ctx, cfg, role)
		if ierr != nil {
			router.WriteJSONError(ctx, ierr.Code, ierr.Message)
			return
		}
		if user != "" {
			ctx.SetUserValue(UserKey, user)
		}
		next(ctx)
	}
}

func clientIP(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

func validateAPIKey(ctx *fasthttp.RequestCtx, cfg SecConfig) (Role, string) {
	key := utils.ExtractAPIKey(ctx)
	if key == "" {
		return RoleUnauth, clientIP(ctx)
	}
	if _, ok := cfg.AdminKeys[key]; ok {
		return RoleAdmin, key
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return RoleBackend, key
	}
	if _, ok := cfg.FrontendKeys[key]; ok {
		return RoleFrontend, key
	}
	return RoleUnauth, key
}

// scopeViolation returns why role may not call this route, or "".
func scopeViolation(ctx *fasthttp.RequestCtx, role Role) string {
	admin := utils.HasPathPrefix(ctx, "/admin")
	switch role {
	case RoleAdmin:
		if !admin {
			return "admin api keys may only access /admin routes"
		}
	case RoleBackend:
		if admin {
			return "backend api keys cannot access admin routes"
		}
	case RoleFrontend:
		if admin || !frontendAllowed(ctx) {
			return "forbidden"
		}
	}
	return ""
}

// frontendAllowed lists the user-scoped routes. Directory seeding and
// signing stay with the backend.
func frontendAllowed(ctx *fasthttp.RequestCtx) bool {
	path := utils.GetPath(ctx)
	method := string(ctx.Method())
	switch {
	case path == utils.WSPath, path == "/v1/unread":
		return true
	case strings.HasPrefix(path, "/v1/chats/"), strings.HasPrefix(path, "/v1/messages"):
		return true
	case strings.HasPrefix(path, "/v1/group-messages"):
		return true
	case strings.HasPrefix(path, "/v1/groups/") && strings.HasSuffix(path, "/messages"):
		return true
	case path == "/v1/users" && method == fasthttp.MethodGet:
		return true
	}
	return false
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func publicAllowedPath(ctx *fasthttp.RequestCtx) bool {
	if string(ctx.Method()) != fasthttp.MethodGet {
		return false
	}
	switch utils.GetPath(ctx) {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}

// CheckOrigin reports whether a websocket upgrade from ctx's Origin is
// allowed. Requests without an Origin header are not browsers and pass.
func (g *Gate) CheckOrigin(ctx *fasthttp.RequestCtx) bool {
	origin := utils.GetHeader(ctx, "Origin")
	return origin == "" || originAllowed(origin, g.cfg.AllowedOrigins)
}
