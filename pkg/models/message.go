package models

import (
	"sort"
	"strings"
)

// MessageStatus is the delivery state of a direct message. It only moves
// from delivered to read.
type MessageStatus string

const (
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Message is a direct message between two users.
type Message struct {
	ID       string        `json:"id"`
	Sender   string        `json:"sender"`
	Receiver string        `json:"receiver"`
	Body     string        `json:"body"`
	Status   MessageStatus `json:"status"`
	// Optional reply-to message ID. Kept as stored even after the target is
	// hard-deleted; views resolve it at read time.
	ReplyTo string `json:"reply_to,omitempty"`
	// DeletedBy lists users that hid the message for themselves.
	DeletedBy []string `json:"deleted_by,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts"`
	// Seq breaks ties between messages created in the same nanosecond.
	Seq uint64 `json:"seq"`
}

// Involves reports whether user is the sender or the receiver.
func (m *Message) Involves(user string) bool {
	return m.Sender == user || m.Receiver == user
}

// HiddenFor reports whether user soft-deleted the message.
func (m *Message) HiddenFor(user string) bool {
	for _, u := range m.DeletedBy {
		if u == user {
			return true
		}
	}
	return false
}

// Hide adds user to the soft-delete set. Returns false if already hidden.
func (m *Message) Hide(user string) bool {
	if m.HiddenFor(user) {
		return false
	}
	m.DeletedBy = append(m.DeletedBy, user)
	return true
}

// HiddenByBoth reports whether neither party can see the message anymore.
func (m *Message) HiddenByBoth() bool {
	return m.HiddenFor(m.Sender) && m.HiddenFor(m.Receiver)
}

// MarkRead flips delivered to read. Returns false when already read.
func (m *Message) MarkRead() bool {
	if m.Status == StatusRead {
		return false
	}
	m.Status = StatusRead
	return true
}

// ConversationID returns the order-independent id of the pair a,b.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}
