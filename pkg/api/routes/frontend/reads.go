package frontend

import (
	"github.com/valyala/fasthttp"

	"chatrelay/pkg/api/router"
	"chatrelay/pkg/api/utils"
)

// ChatHistory serves GET /v1/chats/{counterpart}/messages.
func (h *Handlers) ChatHistory(ctx *fasthttp.RequestCtx) {
	user, tr, ok := router.SetupHandler(ctx, "chat_history")
	if !ok {
		return
	}
	defer tr.Finish()

	with, ok := router.ValidatePathParam(ctx, "counterpart")
	if !ok {
		return
	}
	tr.Mark("fetch_history")
	msgs, err := h.tr.FetchHistory(ctx, user, with)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, MessagesResponse{With: with, Messages: msgs})
}

// GroupHistory serves GET /v1/groups/{groupId}/messages.
func (h *Handlers) GroupHistory(ctx *fasthttp.RequestCtx) {
	user, tr, ok := router.SetupHandler(ctx, "group_history")
	if !ok {
		return
	}
	defer tr.Finish()

	groupID, ok := router.ValidatePathParam(ctx, "groupId")
	if !ok {
		return
	}
	tr.Mark("fetch_history")
	msgs, err := h.tr.FetchGroupHistory(ctx, user, groupID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, GroupMessagesResponse{Group: groupID, Messages: msgs})
}

func (h *Handlers) Unread(ctx *fasthttp.RequestCtx) {
	user, tr, ok := router.SetupHandler(ctx, "unread_counts")
	if !ok {
		return
	}
	defer tr.Finish()

	counts, err := h.tr.UnreadCounts(ctx, user)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, counts)
}

// FindUser serves GET /v1/users?email=.
func (h *Handlers) FindUser(ctx *fasthttp.RequestCtx) {
	_, tr, ok := router.SetupHandler(ctx, "find_user")
	if !ok {
		return
	}
	defer tr.Finish()

	email := utils.GetQuery(ctx, "email")
	if email == "" {
		router.WriteValidationError(ctx, &router.ValidationError{Field: "email", Message: "email query param is required"})
		return
	}
	u, err := h.tr.FindUserByEmail(ctx, email)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, u.Public())
}

// Connect upgrades GET /v1/ws for the authenticated user.
func (h *Handlers) Connect(ctx *fasthttp.RequestCtx) {
	user := router.CurrentUser(ctx)
	if user == "" {
		router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "user identity required")
		return
	}
	if _, err := h.tr.GetUser(ctx, user); err != nil {
		router.WriteError(ctx, err)
		return
	}
	h.ws.Serve(ctx, user)
}
