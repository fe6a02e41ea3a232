package models

// ReplyView is the resolved target of a reply reference.
type ReplyView struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Body   string `json:"body"`
}

// MessageView is a direct message as returned to clients. Reply is null when
// the message is not a reply or its target no longer exists.
type MessageView struct {
	ID        string        `json:"id"`
	Sender    UserRef       `json:"sender"`
	Receiver  string        `json:"receiver"`
	Body      string        `json:"body"`
	Status    MessageStatus `json:"status"`
	Reply     *ReplyView    `json:"reply"`
	CreatedTS int64         `json:"created_ts"`
}

// GroupMessageView is a group message as returned to clients.
type GroupMessageView struct {
	ID        string   `json:"id"`
	Sender    UserRef  `json:"sender"`
	Group     string   `json:"group"`
	Body      string   `json:"body"`
	Unread    []string `json:"unread"`
	CreatedTS int64    `json:"created_ts"`
}

// UnreadCounts holds per-counterpart and per-group unread totals for a user.
type UnreadCounts struct {
	Direct map[string]int `json:"direct"`
	Groups map[string]int `json:"groups"`
}
