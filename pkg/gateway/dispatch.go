package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/signaling"
	"chatrelay/pkg/tracker"
)

// Inbound event names.
const (
	EventSend                = "send"
	EventSendMessage         = "sendMessage"
	EventMarkAsRead          = "markAsRead"
	EventDeleteMessage       = "deleteMessage"
	EventDeleteMessageFromMe = "deleteMessageFromMe"
	EventSendGroupMessage    = "sendGroupMessage"
	EventMarkAsReadMessage   = "markAsReadMessage"
	EventJoinGroup           = "joinGroup"
	EventUserFindEmail       = "userFindemail"
	EventUserFindEmailResult = "res_userFindemail"
)

type sendRequest struct {
	Receiver string `json:"receiver"`
	Body     string `json:"body"`
	Message  string `json:"message"`
	ReplyRef string `json:"replyRef"`
	ReplyID  string `json:"replyId"`
}

type readRequest struct {
	IDs            []string `json:"ids"`
	UnreadMessages []string `json:"unreadMessages"`
	UnRead         []string `json:"unRead"`
}

func (r readRequest) all() []string {
	out := append([]string{}, r.IDs...)
	out = append(out, r.UnreadMessages...)
	return append(out, r.UnRead...)
}

type messageRef struct {
	MessageID string `json:"messageId"`
}

type groupSendRequest struct {
	Group   string `json:"group"`
	Body    string `json:"body"`
	Message string `json:"message"`
}

// joinGroupRequest also accepts a bare group id string.
type joinGroupRequest struct {
	GroupID string `json:"groupId"`
}

func (r *joinGroupRequest) UnmarshalJSON(b []byte) error {
	type plain joinGroupRequest
	return structOrString(b, (*plain)(r), &r.GroupID)
}

// findEmailRequest also accepts a bare email string.
type findEmailRequest struct {
	Email string `json:"email"`
}

func (r *findEmailRequest) UnmarshalJSON(b []byte) error {
	type plain findEmailRequest
	return structOrString(b, (*plain)(r), &r.Email)
}

// structOrString decodes b into v, or into s when b is a JSON string.
func structOrString(b []byte, v any, s *string) error {
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, s)
	}
	return json.Unmarshal(b, v)
}

type roomRequest struct {
	Room string `json:"room"`
	From string `json:"from"`
}

// ReadAck lists the ids a read batch actually changed.
type ReadAck struct {
	Changed []string `json:"changed"`
}

// Dispatcher routes inbound frames to the tracker and the call relay.
type Dispatcher struct {
	hub   *Hub
	tr    *tracker.Tracker
	relay *signaling.Relay
}

func NewDispatcher(hub *Hub, tr *tracker.Tracker, relay *signaling.Relay) *Dispatcher {
	return &Dispatcher{hub: hub, tr: tr, relay: relay}
}

// Handle processes one inbound frame from c and returns the encoded reply,
// or nil when none is due.
func (d *Dispatcher) Handle(ctx context.Context, c *Conn, env Envelope) []byte {
	reply := EventAck
	if env.Event == EventUserFindEmail {
		reply = EventUserFindEmailResult
	}

	data, err := d.dispatch(ctx, c, env)
	if err != nil {
		logger.Debug("ws_event_failed", "event", env.Event, "conn", c.id, "user", c.user, "error", err)
		if env.ID == "" && reply == EventAck {
			return nil
		}
		out, _ := json.Marshal(frame{Event: reply, ID: env.ID, Error: ackError(err)})
		return out
	}
	if env.ID == "" && reply == EventAck {
		return nil
	}
	out, err := encode(reply, env.ID, data)
	if err != nil {
		logger.Error("ws_encode_failed", "event", reply, "error", err)
		return encodeError(env.ID, err)
	}
	return out
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &tracker.Error{Kind: tracker.ErrInvalidArgument, Message: "malformed payload", Err: err}
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, c *Conn, env Envelope) (any, error) {
	if signaling.Handles(env.Event) {
		return nil, d.call(ctx, c, env)
	}

	switch env.Event {
	case EventSend, EventSendMessage:
		var req sendRequest
		if err := decode(env.Data, &req); err != nil {
			return nil, err
		}
		body := req.Body
		if body == "" {
			body = req.Message
		}
		ref := req.ReplyRef
		if ref == "" {
			ref = req.ReplyID
		}
		return d.tr.Send(ctx, c.user, req.Receiver, body, ref)

	case EventMarkAsRead:
		var req readRequest
		if err := decode(env.Data, &req); err != nil {
			return nil, err
		}
		changed, err := d.tr.MarkRead(ctx, c.user, req.all())
		if err != nil {
			return nil, err
		}
		ack := ReadAck{Changed: []string{}}
		for _, m := range changed {
			ack.Changed = append(ack.Changed, m.ID)
		}
		return ack, nil

	case EventDeleteMessage:
		var req messageRef
		if err := decode(env.Data, &req); err != nil {
			return nil, err
		}
		if err := d.tr.DeleteForEveryone(ctx, c.user, req.MessageID); err != nil {
			return nil, err
		}
		return map[string]string{"id": req.MessageID}, nil

	case EventDeleteMessageFromMe:
		var req messageRef
		if err := decode(env.Data, &req); err != nil {
			return nil, err
		}
		if err := d.tr.DeleteForMe(ctx, c.user, req.MessageID); err != nil {
			return nil, err
		}
		return map[string]string{"id": req.MessageID}, nil

	case EventSendGroupMessage:
		var req groupSendRequest
		if err := decode(env.Data, &req); err != nil {
			return nil, err
		}
		body := req.Body
		if body == "" {
			body = req.Message
		}
		return d.tr.SendGroupMessage(ctx, c.user, req.Group, body)

	case EventMarkAsReadMessage:
		var req readRequest
		if err := decode(env.Data, &req); err != nil {
			return nil, err
		}
		changed, err := d.tr.MarkGroupRead(ctx, c.user, req.all())
		if err != nil {
			return nil, err
		}
		ack := ReadAck{Changed: []string{}}
		for _, m := range changed {
			ack.Changed = append(ack.Changed, m.ID)
		}
		return ack, nil

	case EventJoinGroup:
		var req joinGroupRequest
		if err := decode(env.Data, &req); err != nil {
			return nil, err
		}
		if err := d.tr.CanJoinGroup(ctx, c.user, req.GroupID); err != nil {
			return nil, err
		}
		d.hub.Join(c, req.GroupID)
		return map[string]string{"groupId": req.GroupID}, nil

	case EventUserFindEmail:
		var req findEmailRequest
		if err := decode(env.Data, &req); err != nil {
			return nil, err
		}
		u, err := d.tr.FindUserByEmail(ctx, req.Email)
		if err != nil {
			return nil, err
		}
		return u.Public(), nil
	}
	return nil, &tracker.Error{Kind: tracker.ErrInvalidArgument, Message: "unknown event " + env.Event}
}

func (d *Dispatcher) call(ctx context.Context, c *Conn, env Envelope) error {
	switch env.Event {
	case signaling.EventRoomJoin:
		var req signaling.JoinRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		if req.RecUserID != "" {
			if _, err := d.tr.GetUser(ctx, req.RecUserID); err != nil {
				return err
			}
		}
		return d.relay.Join(c.id, c.user, req)
	case signaling.EventCallReject:
		var req roomRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		if req.Room == "" && strings.TrimSpace(req.From) != "" {
			return d.relay.RejectFrom(c.id, c.user, strings.TrimSpace(req.From))
		}
		return d.relay.Reject(c.id, c.user, req.Room)
	case signaling.EventRoomLeave:
		var req roomRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return d.relay.Leave(c.id, req.Room)
	}
	data := env.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return d.relay.Forward(c.id, env.Event, data)
}
