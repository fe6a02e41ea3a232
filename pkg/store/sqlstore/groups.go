package sqlstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"chatrelay/pkg/models"
)

func (s *Store) CreateGroupMessage(ctx context.Context, m *models.GroupMessage) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		row := toGroupMessageRow(m)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return writeUnread(tx, m)
	})
}

func writeUnread(tx *gorm.DB, m *models.GroupMessage) error {
	if err := tx.Where("message_id = ?", m.ID).Delete(&groupUnreadRow{}).Error; err != nil {
		return err
	}
	if len(m.Unread) == 0 {
		return nil
	}
	rows := make([]groupUnreadRow, 0, len(m.Unread))
	for i, u := range m.Unread {
		rows = append(rows, groupUnreadRow{MessageID: m.ID, UserID: u, GroupID: m.Group, Pos: i})
	}
	return tx.Create(&rows).Error
}

func loadUnread(db *gorm.DB, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []groupUnreadRow
	if err := db.Where("message_id IN ?", ids).Order("pos ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.MessageID] = append(out[r.MessageID], r.UserID)
	}
	return out, nil
}

func getGroupMessage(db *gorm.DB, id string) (*models.GroupMessage, error) {
	var row groupMessageRow
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	unread, err := loadUnread(db, []string{id})
	if err != nil {
		return nil, err
	}
	return row.model(unread[id]), nil
}

func (s *Store) GetGroupMessage(ctx context.Context, id string) (*models.GroupMessage, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return getGroupMessage(db, id)
}

func (s *Store) UpdateGroupMessages(ctx context.Context, ids []string, fn func(*models.GroupMessage) (bool, error)) ([]*models.GroupMessage, error) {
	var changed []*models.GroupMessage
	err := s.tx(ctx, func(tx *gorm.DB) error {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			m, err := getGroupMessage(tx, id)
			if err != nil {
				return fmt.Errorf("group message %s: %w", id, err)
			}
			ok, err := fn(m)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := writeUnread(tx, m); err != nil {
				return err
			}
			changed = append(changed, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func deleteGroupMessages(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("message_id IN ?", ids).Delete(&groupUnreadRow{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&groupMessageRow{}).Error
}

func (s *Store) ListGroupMessages(ctx context.Context, groupID string) ([]*models.GroupMessage, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []groupMessageRow
	err = db.Where("group_id = ?", groupID).
		Order("created_ts ASC").Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	unread, err := loadUnread(db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*models.GroupMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model(unread[r.ID]))
	}
	return out, nil
}
