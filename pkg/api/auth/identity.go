package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/valyala/fasthttp"

	"chatrelay/pkg/api/utils"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/telemetry"
)

// caller role
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleFrontend:
		return "frontend"
	case RoleBackend:
		return "backend"
	case RoleAdmin:
		return "admin"
	}
	return "unauth"
}

// UserKey is the ctx.UserValue key holding the verified user id.
const UserKey = "user"

const maxUserIDLen = 128

// IdentityError is a failed user resolution with the HTTP status to report.
type IdentityError struct {
	Type    string
	Message string
	Code    int
}

func (e *IdentityError) Error() string {
	return e.Message
}

var (
	ErrUserRequired     = &IdentityError{"user_required", "user identity required", fasthttp.StatusUnauthorized}
	ErrUserTooLong      = &IdentityError{"user_too_long", "user id too long", fasthttp.StatusBadRequest}
	ErrInvalidSignature = &IdentityError{"invalid_signature", "invalid signature", fasthttp.StatusUnauthorized}
)

// SecConfig is everything the gate needs from configuration.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
	// SigningKeys verify user signatures. Backend keys double as signing
	// keys, so a backend can mint signatures for its users.
	SigningKeys map[string]struct{}
}

// CreateHMACSignature signs userID with key: hex(HMAC-SHA256(userID)).
func CreateHMACSignature(userID, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSignature checks signature against every signing key.
func VerifyHMACSignature(userID, signature string, keys map[string]struct{}) bool {
	for k := range keys {
		expected := CreateHMACSignature(userID, k)
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}
	return false
}

// resolveUser works out who the request acts for.
//
// A signature always wins and must verify. Backends may name a user through
// X-User-ID without one. Frontends must sign. Admin requests act for nobody.
func resolveUser(ctx *fasthttp.RequestCtx, cfg SecConfig, role Role) (string, *IdentityError) {
	tr := telemetry.Track("auth.resolve_user")
	defer tr.Finish()

	userID := utils.GetUserID(ctx)
	sig := utils.GetUserSignature(ctx)
	if len(userID) > maxUserIDLen {
		return "", ErrUserTooLong
	}

	if sig != "" {
		if userID == "" {
			return "", ErrUserRequired
		}
		tr.Mark("verify_signature")
		if !VerifyHMACSignature(userID, sig, cfg.SigningKeys) {
			logger.Warn("invalid_signature", "user", userID, "remote", ctx.RemoteAddr().String(), "path", utils.GetPath(ctx))
			return "", ErrInvalidSignature
		}
		return userID, nil
	}

	switch role {
	case RoleBackend:
		// may be empty; handlers that need a user reject it themselves
		return userID, nil
	case RoleFrontend:
		logger.Warn("missing_signature", "path", utils.GetPath(ctx), "remote", ctx.RemoteAddr().String())
		return "", ErrUserRequired
	}
	return "", nil
}
