package tracker

import (
	"context"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/metrics"
	"chatrelay/pkg/models"
	"chatrelay/pkg/telemetry"
)

// ReadReceipt tells a sender which of its messages a reader has read.
type ReadReceipt struct {
	Reader string   `json:"reader"`
	IDs    []string `json:"ids"`
}

// DeletedNotice tells the receiver a message was deleted for everyone.
type DeletedNotice struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
}

// Send persists a direct message as delivered and pushes it to the receiver's
// live connections.
func (t *Tracker) Send(ctx context.Context, sender, receiver, body, replyRef string) (*models.Message, error) {
	tr := telemetry.Track("tracker.send")
	defer tr.Finish()

	if err := validUser("sender", sender); err != nil {
		return nil, err
	}
	if err := validUser("receiver", receiver); err != nil {
		return nil, err
	}
	if sender == receiver {
		return nil, invalid("cannot send a message to yourself")
	}
	body, err := cleanBody(body)
	if err != nil {
		return nil, err
	}
	if replyRef != "" {
		if err := validID("replyRef", replyRef); err != nil {
			return nil, err
		}
	}

	from, err := t.store.GetUser(ctx, sender)
	if err != nil {
		return nil, fromStore(err, "sender")
	}
	if _, err := t.store.GetUser(ctx, receiver); err != nil {
		return nil, fromStore(err, "receiver")
	}
	var reply *models.ReplyView
	if replyRef != "" {
		ref, err := t.store.GetMessage(ctx, replyRef)
		if err != nil {
			return nil, fromStore(err, "reply target")
		}
		if models.ConversationID(ref.Sender, ref.Receiver) != models.ConversationID(sender, receiver) {
			return nil, invalid("reply target belongs to another conversation")
		}
		reply = replyView(ref)
	}
	tr.Mark("validate")

	ts, seq := t.stamp()
	m := &models.Message{
		ID:        t.newID(),
		Sender:    sender,
		Receiver:  receiver,
		Body:      body,
		Status:    models.StatusDelivered,
		ReplyTo:   replyRef,
		CreatedTS: ts,
		Seq:       seq,
	}
	if err := t.store.CreateMessage(ctx, m); err != nil {
		logger.Error("message_persist_failed", "sender", sender, "receiver", receiver, "error", err)
		return nil, fromStore(err, "message")
	}
	tr.Mark("persist")
	metrics.MessagesSent.WithLabelValues("direct").Inc()

	view := messageView(m, from.Ref(), reply)
	t.deliver(receiver, EventMessage, view)
	logger.Debug("message_sent", "id", m.ID, "sender", sender, "receiver", receiver)
	return m, nil
}

// MarkRead flips the given messages to read for their receiver. The batch is
// all-or-nothing: a malformed, unknown or foreign id applies nothing.
// Returns the messages that changed.
func (t *Tracker) MarkRead(ctx context.Context, reader string, ids []string) ([]*models.Message, error) {
	tr := telemetry.Track("tracker.mark_read")
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

	changed, err := t.store.UpdateMessages(ctx, ids, func(m *models.Message) (bool, error) {
		if m.Receiver != reader {
			return false, forbidden("message %s was not sent to %s", m.ID, reader)
		}
		return m.MarkRead(), nil
	})
	if err != nil {
		return nil, fromStore(err, "message")
	}
	tr.Mark("commit")
	if len(changed) == 0 {
		return nil, nil
	}
	metrics.Receipts.WithLabelValues("direct").Add(float64(len(changed)))

	bySender := make(map[string][]string)
	var order []string
	for _, m := range changed {
		if _, ok := bySender[m.Sender]; !ok {
			order = append(order, m.Sender)
		}
		bySender[m.Sender] = append(bySender[m.Sender], m.ID)
	}
	for _, s := range order {
		t.deliver(s, EventMessageRead, ReadReceipt{Reader: reader, IDs: bySender[s]})
	}
	return changed, nil
}

// DeleteForMe hides a message from userID's history only.
func (t *Tracker) DeleteForMe(ctx context.Context, userID, msgID string) error {
	if err := validUser("user", userID); err != nil {
		return err
	}
	if err := validID("messageId", msgID); err != nil {
		return err
	}
	_, err := t.store.UpdateMessages(ctx, []string{msgID}, func(m *models.Message) (bool, error) {
		if !m.Involves(userID) {
			return false, forbidden("%s is not a party to message %s", userID, m.ID)
		}
		return m.Hide(userID), nil
	})
	if err != nil {
		return fromStore(err, "message")
	}
	return nil
}

// DeleteForEveryone hard-deletes a message. Only its sender may do so.
func (t *Tracker) DeleteForEveryone(ctx context.Context, requester, msgID string) error {
	if err := validUser("requester", requester); err != nil {
		return err
	}
	if err := validID("messageId", msgID); err != nil {
		return err
	}
	m, err := t.store.DeleteMessage(ctx, msgID, func(m *models.Message) error {
		if m.Sender != requester {
			return forbidden("only the sender can delete message %s for everyone", m.ID)
		}
		return nil
	})
	if err != nil {
		return fromStore(err, "message")
	}
	logger.AuditEvent("message_deleted_for_everyone", "id", m.ID, "sender", m.Sender, "receiver", m.Receiver)
	t.deliver(m.Receiver, EventMessageDeleted, DeletedNotice{ID: m.ID, Sender: m.Sender})
	return nil
}

// FetchHistory returns the conversation between userID and counterpartID as
// userID sees it, oldest first. Nothing is marked read.
func (t *Tracker) FetchHistory(ctx context.Context, userID, counterpartID string) ([]models.MessageView, error) {
	tr := telemetry.Track("tracker.fetch_history")
	defer tr.Finish()

	if err := validUser("user", userID); err != nil {
		return nil, err
	}
	if err := validUser("counterpart", counterpartID); err != nil {
		return nil, err
	}
	if userID == counterpartID {
		return nil, invalid("counterpart must differ from user")
	}
	me, err := t.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fromStore(err, "user")
	}
	peer, err := t.store.GetUser(ctx, counterpartID)
	if err != nil {
		return nil, fromStore(err, "counterpart")
	}

	msgs, err := t.store.ListConversation(ctx, userID, counterpartID)
	if err != nil {
		return nil, fromStore(err, "conversation")
	}
	tr.Mark("list")

	// a target the reader hid resolves to null for that reader only
	byID := make(map[string]*models.Message, len(msgs))
	for _, m := range msgs {
		if !m.HiddenFor(userID) {
			byID[m.ID] = m
		}
	}
	refs := map[string]models.UserRef{me.ID: me.Ref(), peer.ID: peer.Ref()}

	out := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		if m.HiddenFor(userID) {
			continue
		}
		var reply *models.ReplyView
		if m.ReplyTo != "" {
			// a target gone from the conversation was hard-deleted
			if target, ok := byID[m.ReplyTo]; ok {
				reply = replyView(target)
			}
		}
		out = append(out, messageView(m, refs[m.Sender], reply))
	}
	return out, nil
}

// UnreadCounts returns per-counterpart and per-group unread totals.
func (t *Tracker) UnreadCounts(ctx context.Context, userID string) (models.UnreadCounts, error) {
	if err := validUser("user", userID); err != nil {
		return models.UnreadCounts{}, err
	}
	counts, err := t.store.UnreadCounts(ctx, userID)
	if err != nil {
		return models.UnreadCounts{}, fromStore(err, "unread counts")
	}
	// markers of groups the user has since left do not count
	groups, err := t.store.ListUserGroups(ctx, userID)
	if err != nil {
		return models.UnreadCounts{}, fromStore(err, "groups")
	}
	member := make(map[string]bool, len(groups))
	for _, g := range groups {
		member[g] = true
	}
	for g := range counts.Groups {
		if !member[g] {
			delete(counts.Groups, g)
		}
	}
	return counts, nil
}

func (t *Tracker) deliver(userID, event string, payload any) {
	if t.gw == nil {
		return
	}
	if n := t.gw.Deliver(userID, event, payload); n > 0 {
		metrics.Deliveries.WithLabelValues(event).Add(float64(n))
	}
}
