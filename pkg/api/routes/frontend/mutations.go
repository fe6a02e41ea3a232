package frontend

import (
	"github.com/valyala/fasthttp"

	"chatrelay/pkg/api/router"
)

// SendChat serves POST /v1/chats/{counterpart}/messages.
func (h *Handlers) SendChat(ctx *fasthttp.RequestCtx) {
	user, tr, ok := router.SetupHandler(ctx, "send_message")
	if !ok {
		return
	}
	defer tr.Finish()

	to, ok := router.ValidatePathParam(ctx, "counterpart")
	if !ok {
		return
	}
	var req SendRequest
	if !router.DecodeBody(ctx, &req) {
		return
	}
	tr.Mark("send")
	m, err := h.tr.Send(ctx, user, to, req.Body, req.ReplyRef)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSONStatus(ctx, fasthttp.StatusCreated, MessageResponse{Message: m})
}

// MarkRead serves POST /v1/messages/read.
func (h *Handlers) MarkRead(ctx *fasthttp.RequestCtx) {
	user, tr, ok := router.SetupHandler(ctx, "mark_read")
	if !ok {
		return
	}
	defer tr.Finish()

	var req ReadRequest
	if !router.DecodeBody(ctx, &req) {
		return
	}
	changed, err := h.tr.MarkRead(ctx, user, req.IDs)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	resp := ReadResponse{Changed: []string{}}
	for _, m := range changed {
		resp.Changed = append(resp.Changed, m.ID)
	}
	_ = router.WriteJSON(ctx, resp)
}

// DeleteMessage serves DELETE /v1/messages/{id}: delete for everyone.
func (h *Handlers) DeleteMessage(ctx *fasthttp.RequestCtx) {
	user, tr, ok := router.SetupHandler(ctx, "delete_message")
	if !ok {
		return
	}
	defer tr.Finish()

	id, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	if err := h.tr.DeleteForEveryone(ctx, user, id); err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]string{"id": id, "status": "deleted"})
}

// HideMessage serves PUT /v1/messages/{id}/hide: delete for the caller only.
func (h *Handlers) HideMessage(ctx *fasthttp.RequestCtx) {
	user, tr, ok := router.SetupHandler(ctx, "hide_message")
	if !ok {
		return
	}
	defer tr.Finish()

	id, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	if err := h.tr.DeleteForMe(ctx, user, id); err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]string{"id": id, "status": "hidden"})
}

// SendGroup serves POST /v1/groups/{groupId}/messages.
func (h *Handlers) SendGroup(ctx *fasthttp.RequestCtx) {
	user, tr, ok := router.SetupHandler(ctx, "send_group_message")
	if !ok {
		return
	}
	defer tr.Finish()

	groupID, ok := router.ValidatePathParam(ctx, "groupId")
	if !ok {
		return
	}
	var req SendRequest
	if !router.DecodeBody(ctx, &req) {
		return
	}
	m, err := h.tr.SendGroupMessage(ctx, user, groupID, req.Body)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSONStatus(ctx, fasthttp.StatusCreated, GroupMessageResponse{Message: m})
}

// MarkGroupRead serves POST /v1/group-messages/read.
func (h *Handlers) MarkGroupRead(ctx *fasthttp.RequestCtx) {
	user, tr, ok := router.SetupHandler(ctx, "mark_group_read")
	if !ok {
		return
	}
	defer tr.Finish()

	var req ReadRequest
	if !router.DecodeBody(ctx, &req) {
		return
	}
	changed, err := h.tr.MarkGroupRead(ctx, user, req.IDs)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	resp := ReadResponse{Changed: []string{}}
	for _, m := range changed {
		resp.Changed = append(resp.Changed, m.ID)
	}
	_ = router.WriteJSON(ctx, resp)
}
