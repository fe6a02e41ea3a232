package pebblestore

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"

	"chatrelay/pkg/models"
	"chatrelay/pkg/store/keys"
)

func convKey(m *models.Message) string {
	return keys.GenConvIndexKey(models.ConversationID(m.Sender, m.Receiver), m.CreatedTS, m.Seq)
}

func unreadKey(m *models.Message) string {
	return keys.GenUnreadKey(m.Receiver, m.Sender, m.ID)
}

// counts toward the receiver's unread total
func isUnread(m *models.Message) bool {
	return m.Status == models.StatusDelivered && !m.HiddenFor(m.Receiver)
}

// CreateMessage persists a new direct message with its indexes.
func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	release, err := s.acquireWrite(ctx)
	if err != nil {
		return err
	}
	defer release()

	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, keys.GenMessageKey(m.ID), m); err != nil {
		return err
	}
	if err := b.Set([]byte(convKey(m)), []byte(m.ID), nil); err != nil {
		return err
	}
	if isUnread(m) {
		if err := b.Set([]byte(unreadKey(m)), nil, nil); err != nil {
			return err
		}
	}
	return s.commit(ctx, b)
}

func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	var m models.Message
	if err := s.getJSON(keys.GenMessageKey(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessages loads every id, applies fn and commits all changed records
// in one batch. Any missing id or fn error aborts the whole call.
func (s *Store) UpdateMessages(ctx context.Context, ids []string, fn func(*models.Message) (bool, error)) ([]*models.Message, error) {
	release, err := s.acquireWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	b := s.db.NewBatch()
	defer b.Close()
	seen := make(map[string]bool, len(ids))
	var changed []*models.Message
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		var m models.Message
		if err := s.getJSON(keys.GenMessageKey(id), &m); err != nil {
			return nil, fmt.Errorf("message %s: %w", id, err)
		}
		wasUnread := isUnread(&m)
		ok, err := fn(&m)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := setJSON(b, keys.GenMessageKey(id), &m); err != nil {
			return nil, err
		}
		if wasUnread && !isUnread(&m) {
			if err := del(b, unreadKey(&m)); err != nil {
				return nil, err
			}
		}
		changed = append(changed, &m)
	}
	if err := s.commit(ctx, b); err != nil {
		return nil, err
	}
	return changed, nil
}

// DeleteMessage removes a message and its indexes after check approves it.
func (s *Store) DeleteMessage(ctx context.Context, id string, check func(*models.Message) error) (*models.Message, error) {
	release, err := s.acquireWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var m models.Message
	if err := s.getJSON(keys.GenMessageKey(id), &m); err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(&m); err != nil {
			return nil, err
		}
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := deleteMessage(b, &m); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, b); err != nil {
		return nil, err
	}
	return &m, nil
}

func deleteMessage(b *pebble.Batch, m *models.Message) error {
	if err := del(b, keys.GenMessageKey(m.ID)); err != nil {
		return err
	}
	if err := del(b, convKey(m)); err != nil {
		return err
	}
	return del(b, unreadKey(m))
}

// ListConversation returns every message between a and b, oldest first.
func (s *Store) ListConversation(ctx context.Context, a, b string) ([]*models.Message, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	// index and records come from one snapshot so a concurrent delete
	// cannot leave an index entry pointing at a missing record
	snap := s.db.NewSnapshot()
	defer snap.Close()

	var ids []string
	err = scanFrom(snap, keys.ConvPrefix(models.ConversationID(a, b)), func(_, v []byte) error {
		ids = append(ids, string(v))
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		var m models.Message
		if err := getJSONFrom(snap, keys.GenMessageKey(id), &m); err != nil {
			return nil, fmt.Errorf("message %s: %w", id, err)
		}
		out = append(out, &m)
	}
	return out, nil
}
