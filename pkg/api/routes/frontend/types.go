package frontend

import "chatrelay/pkg/models"

type SendRequest struct {
	Body     string `json:"body"`
	ReplyRef string `json:"replyRef,omitempty"`
}

type ReadRequest struct {
	IDs []string `json:"ids"`
}

type MessagesResponse struct {
	With     string               `json:"with"`
	Messages []models.MessageView `json:"messages"`
}

type GroupMessagesResponse struct {
	Group    string                    `json:"group"`
	Messages []models.GroupMessageView `json:"messages"`
}

type MessageResponse struct {
	Message *models.Message `json:"message"`
}

type GroupMessageResponse struct {
	Message *models.GroupMessage `json:"message"`
}

// ReadResponse lists the ids a read batch actually changed.
type ReadResponse struct {
	Changed []string `json:"changed"`
}
