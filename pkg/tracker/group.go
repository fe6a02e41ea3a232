package tracker

import (
	"context"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/metrics"
	"chatrelay/pkg/models"
	"chatrelay/pkg/telemetry"
)

// GroupReadItem is the unread state of one group message after a read.
type GroupReadItem struct {
	ID     string   `json:"id"`
	Group  string   `json:"group"`
	Unread []string `json:"unread"`
}

// GroupReadReceipt tells a sender which of its group messages a member read.
type GroupReadReceipt struct {
	Reader   string          `json:"reader"`
	Messages []GroupReadItem `json:"messages"`
}

// SendGroupMessage persists a group message with every other member unread
// and pushes it to the members' joined connections.
func (t *Tracker) SendGroupMessage(ctx context.Context, sender, groupID, body string) (*models.GroupMessage, error) {
	tr := telemetry.Track("tracker.send_group")
	defer tr.Finish()

	if err := validUser("sender", sender); err != nil {
		return nil, err
	}
	if err := validID("group", groupID); err != nil {
		return nil, err
	}
	body, err := cleanBody(body)
	if err != nil {
		return nil, err
	}
	g, err := t.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fromStore(err, "group")
	}
	if !g.HasMember(sender) {
		return nil, forbidden("%s is not a member of group %s", sender, groupID)
	}
	from, err := t.store.GetUser(ctx, sender)
	if err != nil {
		return nil, fromStore(err, "sender")
	}

	recipients := make([]string, 0, len(g.Members))
	seen := map[string]bool{sender: true}
	for _, m := range g.Members {
		if seen[m] {
			continue
		}
		seen[m] = true
		recipients = append(recipients, m)
	}
	tr.Mark("validate")

	ts, seq := t.stamp()
	m := &models.GroupMessage{
		ID:        t.newID(),
		Sender:    sender,
		Group:     groupID,
		Body:      body,
		Unread:    append([]string{}, recipients...),
		CreatedTS: ts,
		Seq:       seq,
	}
	if err := t.store.CreateGroupMessage(ctx, m); err != nil {
		logger.Error("group_message_persist_failed", "sender", sender, "group", groupID, "error", err)
		return nil, fromStore(err, "group message")
	}
	tr.Mark("persist")
	metrics.MessagesSent.WithLabelValues("group").Inc()

	if t.gw != nil {
		view := groupMessageView(m, from.Ref())
		if n := t.gw.DeliverGroup(groupID, recipients, EventMessageGroup, view); n > 0 {
			metrics.Deliveries.WithLabelValues(EventMessageGroup).Add(float64(n))
		}
	}
	return m, nil
}

// MarkGroupRead removes reader from the unread list of each message. Like
// MarkRead the batch is all-or-nothing. Returns the messages that changed.
func (t *Tracker) MarkGroupRead(ctx context.Context, reader string, ids []string) ([]*models.GroupMessage, error) {
	tr := telemetry.Track("tracker.mark_group_read")
	defer tr.Finish()

	if err := validUser("reader", reader); err != nil {
		return nil, err
	}
	ids, err := dedupe("ids", ids)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// membership is resolved before the write so the update callback never
	// reads from the store while holding its lock
	allowed := make(map[string]bool)
	for _, id := range ids {
		m, err := t.store.GetGroupMessage(ctx, id)
		if err != nil {
			return nil, fromStore(err, "group message")
		}
		if _, done := allowed[m.Group]; done {
			continue
		}
		g, err := t.store.GetGroup(ctx, m.Group)
		if err != nil {
			return nil, fromStore(err, "group")
		}
		allowed[m.Group] = g.HasMember(reader)
	}
	tr.Mark("membership")

	changed, err := t.store.UpdateGroupMessages(ctx, ids, func(m *models.GroupMessage) (bool, error) {
		if !allowed[m.Group] {
			return false, forbidden("%s is not a member of group %s", reader, m.Group)
		}
		return m.RemoveUnread(reader), nil
	})
	if err != nil {
		return nil, fromStore(err, "group message")
	}
	tr.Mark("commit")
	if len(changed) == 0 {
		return nil, nil
	}
	metrics.Receipts.WithLabelValues("group").Add(float64(len(changed)))

	bySender := make(map[string][]GroupReadItem)
	var order []string
	for _, m := range changed {
		if _, ok := bySender[m.Sender]; !ok {
			order = append(order, m.Sender)
		}
		bySender[m.Sender] = append(bySender[m.Sender], GroupReadItem{ID: m.ID, Group: m.Group, Unread: m.Unread})
	}
	for _, s := range order {
		t.deliver(s, EventMessageGroupRead, GroupReadReceipt{Reader: reader, Messages: bySender[s]})
	}
	return changed, nil
}

// FetchGroupHistory returns the group's messages, oldest first. Members only.
func (t *Tracker) FetchGroupHistory(ctx context.Context, userID, groupID string) ([]models.GroupMessageView, error) {
	tr := telemetry.Track("tracker.fetch_group_history")
	defer tr.Finish()

	if err := validUser("user", userID); err != nil {
		return nil, err
	}
	if err := validID("group", groupID); err != nil {
		return nil, err
	}
	g, err := t.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fromStore(err, "group")
	}
	if !g.HasMember(userID) {
		return nil, forbidden("%s is not a member of group %s", userID, groupID)
	}
	msgs, err := t.store.ListGroupMessages(ctx, groupID)
	if err != nil {
		return nil, fromStore(err, "group messages")
	}
	tr.Mark("list")

	refs := newRefCache(t.store)
	out := make([]models.GroupMessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, groupMessageView(m, refs.get(ctx, m.Sender)))
	}
	return out, nil
}

// CanJoinGroup reports whether userID may subscribe to groupID's deliveries.
func (t *Tracker) CanJoinGroup(ctx context.Context, userID, groupID string) error {
	if err := validID("groupId", groupID); err != nil {
		return err
	}
	g, err := t.store.GetGroup(ctx, groupID)
	if err != nil {
		return fromStore(err, "group")
	}
	if !g.HasMember(userID) {
		return forbidden("%s is not a member of group %s", userID, groupID)
	}
	return nil
}
