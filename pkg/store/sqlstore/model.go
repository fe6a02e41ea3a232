package sqlstore

import (
	"chatrelay/pkg/models"
)

// userRow is the SQL representation of a user. Email is nullable so the
// unique index only applies to users that have one.
type userRow struct {
	ID        string  `gorm:"primaryKey;size:128"`
	Name      string  `gorm:"not null"`
	Email     *string `gorm:"uniqueIndex"`
	Photo     string
	Phone     string
	CreatedTS int64
}

func (userRow) TableName() string { return "users" }

type groupRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"not null"`
	CreatedTS int64
}

func (groupRow) TableName() string { return "groups" }

// groupMemberRow keeps member order through Pos.
type groupMemberRow struct {
	GroupID string `gorm:"primaryKey;size:36"`
	UserID  string `gorm:"primaryKey;size:128;index"`
	Pos     int    `gorm:"not null"`
}

func (groupMemberRow) TableName() string { return "group_members" }

type messageRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	ConvID    string `gorm:"not null;index:idx_conv_order,priority:1"`
	Sender    string `gorm:"not null;index"`
	Receiver  string `gorm:"not null;index"`
	Body      string `gorm:"not null"`
	Status    string `gorm:"not null"`
	ReplyTo   string
	CreatedTS int64  `gorm:"not null;index:idx_conv_order,priority:2"`
	Seq       uint64 `gorm:"not null;index:idx_conv_order,priority:3"`
}

func (messageRow) TableName() string { return "messages" }

// messageHideRow is one entry of a message's soft-delete set.
type messageHideRow struct {
	MessageID string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:128"`
	Pos       int    `gorm:"not null"`
}

func (messageHideRow) TableName() string { return "message_hides" }

type groupMessageRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	GroupID   string `gorm:"not null;index:idx_group_order,priority:1"`
	Sender    string `gorm:"not null"`
	Body      string `gorm:"not null"`
	CreatedTS int64  `gorm:"not null;index:idx_group_order,priority:2"`
	Seq       uint64 `gorm:"not null;index:idx_group_order,priority:3"`
}

func (groupMessageRow) TableName() string { return "group_messages" }

// groupUnreadRow marks a group message as unread by one member.
type groupUnreadRow struct {
	MessageID string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:128;index"`
	GroupID   string `gorm:"not null;index"`
	Pos       int    `gorm:"not null"`
}

func (groupUnreadRow) TableName() string { return "group_unreads" }

func toUserRow(u *models.User) userRow {
	r := userRow{ID: u.ID, Name: u.Name, Photo: u.Photo, Phone: u.Phone, CreatedTS: u.CreatedTS}
	if u.Email != "" {
		e := u.Email
		r.Email = &e
	}
	return r
}

func (r userRow) model() *models.User {
	u := &models.User{ID: r.ID, Name: r.Name, Photo: r.Photo, Phone: r.Phone, CreatedTS: r.CreatedTS}
	if r.Email != nil {
		u.Email = *r.Email
	}
	return u
}

func toMessageRow(m *models.Message) messageRow {
	return messageRow{
		ID:        m.ID,
		ConvID:    models.ConversationID(m.Sender, m.Receiver),
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Body:      m.Body,
		Status:    string(m.Status),
		ReplyTo:   m.ReplyTo,
		CreatedTS: m.CreatedTS,
		Seq:       m.Seq,
	}
}

func (r messageRow) model(hides []string) *models.Message {
	return &models.Message{
		ID:        r.ID,
		Sender:    r.Sender,
		Receiver:  r.Receiver,
		Body:      r.Body,
		Status:    models.MessageStatus(r.Status),
		ReplyTo:   r.ReplyTo,
		DeletedBy: hides,
		CreatedTS: r.CreatedTS,
		Seq:       r.Seq,
	}
}

func toGroupMessageRow(m *models.GroupMessage) groupMessageRow {
	return groupMessageRow{
		ID:        m.ID,
		GroupID:   m.Group,
		Sender:    m.Sender,
		Body:      m.Body,
		CreatedTS: m.CreatedTS,
		Seq:       m.Seq,
	}
}

func (r groupMessageRow) model(unread []string) *models.GroupMessage {
	if unread == nil {
		unread = []string{}
	}
	return &models.GroupMessage{
		ID:        r.ID,
		Sender:    r.Sender,
		Group:     r.GroupID,
		Body:      r.Body,
		Unread:    unread,
		CreatedTS: r.CreatedTS,
		Seq:       r.Seq,
	}
}
