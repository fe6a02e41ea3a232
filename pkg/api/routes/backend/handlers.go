// Package backend serves directory seeding and signature minting. Only
// backend API keys reach it.
package backend

import (
	"sort"
	"strings"

	"github.com/valyala/fasthttp"

	"chatrelay/pkg/api/auth"
	"chatrelay/pkg/api/router"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/tracker"
)

type Handlers struct {
	tr *tracker.Tracker
	// signingKey mints user signatures; empty disables /v1/_sign.
	signingKey string
}

// New signs with the lexically first signing key.
func New(tr *tracker.Tracker, signingKeys map[string]struct{}) *Handlers {
	keys := make([]string, 0, len(signingKeys))
	for k := range signingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := &Handlers{tr: tr}
	if len(keys) > 0 {
		h.signingKey = keys[0]
	}
	return h
}

type CreateGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type SignRequest struct {
	UserID string `json:"userId"`
}

type SignResponse struct {
	UserID    string `json:"userId"`
	Signature string `json:"signature"`
}

// RegisterUser serves POST /v1/users.
func (h *Handlers) RegisterUser(ctx *fasthttp.RequestCtx) {
	var req models.User
	if !router.DecodeBody(ctx, &req) {
		return
	}
	vr := &router.ValidationResult{}
	vr.Require("id", req.ID)
	vr.Require("name", req.Name)
	if err := vr.Err(); err != nil {
		router.WriteValidationError(ctx, err)
		return
	}
	u, err := h.tr.RegisterUser(ctx, req)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSONStatus(ctx, fasthttp.StatusCreated, u)
}

// CreateGroup serves POST /v1/groups.
func (h *Handlers) CreateGroup(ctx *fasthttp.RequestCtx) {
	var req CreateGroupRequest
	if !router.DecodeBody(ctx, &req) {
		return
	}
	vr := &router.ValidationResult{}
	vr.Require("name", req.Name)
	if len(req.Members) == 0 {
		vr.AddError("members", "at least one member is required")
	}
	if err := vr.Err(); err != nil {
		router.WriteValidationError(ctx, err)
		return
	}
	g, err := h.tr.CreateGroup(ctx, req.Name, req.Members)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSONStatus(ctx, fasthttp.StatusCreated, g)
}

// GetGroup serves GET /v1/groups/{groupId}.
func (h *Handlers) GetGroup(ctx *fasthttp.RequestCtx) {
	id, ok := router.ValidatePathParam(ctx, "groupId")
	if !ok {
		return
	}
	g, err := h.tr.GetGroup(ctx, id)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, g)
}

// Sign serves POST /v1/_sign.
func (h *Handlers) Sign(ctx *fasthttp.RequestCtx) {
	var req SignRequest
	if !router.DecodeBody(ctx, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || len(req.UserID) > 128 {
		router.WriteValidationError(ctx, &router.ValidationError{Field: "userId", Message: "must be 1-128 characters"})
		return
	}
	if h.signingKey == "" {
		logger.Error("sign_unconfigured", "remote", ctx.RemoteAddr().String())
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "signing keys not configured")
		return
	}
	sig := auth.CreateHMACSignature(req.UserID, h.signingKey)
	_ = router.WriteJSON(ctx, SignResponse{UserID: req.UserID, Signature: sig})
}
