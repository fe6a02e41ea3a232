package tracker

import (
	"context"

	"chatrelay/pkg/models"
)

func replyView(m *models.Message) *models.ReplyView {
	return &models.ReplyView{ID: m.ID, Sender: m.Sender, Body: m.Body}
}

func messageView(m *models.Message, sender models.UserRef, reply *models.ReplyView) models.MessageView {
	return models.MessageView{
		ID:        m.ID,
		Sender:    sender,
		Receiver:  m.Receiver,
		Body:      m.Body,
		Status:    m.Status,
		Reply:     reply,
		CreatedTS: m.CreatedTS,
	}
}

func groupMessageView(m *models.GroupMessage, sender models.UserRef) models.GroupMessageView {
	unread := m.Unread
	if unread == nil {
		unread = []string{}
	}
	return models.GroupMessageView{
		ID:        m.ID,
		Sender:    sender,
		Group:     m.Group,
		Body:      m.Body,
		Unread:    unread,
		CreatedTS: m.CreatedTS,
	}
}

// refCache resolves sender refs once per request. Unknown users render with
// their id only.
type refCache struct {
	dir  Directory
	refs map[string]models.UserRef
}

func newRefCache(dir Directory) *refCache {
	return &refCache{dir: dir, refs: make(map[string]models.UserRef)}
}

func (c *refCache) get(ctx context.Context, id string) models.UserRef {
	if r, ok := c.refs[id]; ok {
		return r
	}
	r := models.UserRef{ID: id}
	if u, err := c.dir.GetUser(ctx, id); err == nil {
		r = u.Ref()
	}
	c.refs[id] = r
	return r
}
