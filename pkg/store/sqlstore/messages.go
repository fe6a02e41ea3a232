package sqlstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
)

func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		row := toMessageRow(m)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return writeHides(tx, m)
	})
}

func writeHides(tx *gorm.DB, m *models.Message) error {
	if err := tx.Where("message_id = ?", m.ID).Delete(&messageHideRow{}).Error; err != nil {
		return err
	}
	if len(m.DeletedBy) == 0 {
		return nil
	}
	rows := make([]messageHideRow, 0, len(m.DeletedBy))
	for i, u := range m.DeletedBy {
		rows = append(rows, messageHideRow{MessageID: m.ID, UserID: u, Pos: i})
	}
	return tx.Create(&rows).Error
}

// loadHides returns the soft-delete sets of ids keyed by message id.
func loadHides(db *gorm.DB, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []messageHideRow
	if err := db.Where("message_id IN ?", ids).Order("pos ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.MessageID] = append(out[r.MessageID], r.UserID)
	}
	return out, nil
}

func getMessage(db *gorm.DB, id string) (*models.Message, error) {
	var row messageRow
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	hides, err := loadHides(db, []string{id})
	if err != nil {
		return nil, err
	}
	return row.model(hides[id]), nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return getMessage(db, id)
}

// UpdateMessages loads every id, applies fn and saves all changed records in
// one transaction. Any missing id or fn error rolls back the whole call.
func (s *Store) UpdateMessages(ctx context.Context, ids []string, fn func(*models.Message) (bool, error)) ([]*models.Message, error) {
	var changed []*models.Message
	err := s.tx(ctx, func(tx *gorm.DB) error {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			m, err := getMessage(tx, id)
			if err != nil {
				return fmt.Errorf("message %s: %w", id, err)
			}
			ok, err := fn(m)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			row := toMessageRow(m)
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
			if err := writeHides(tx, m); err != nil {
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

func (s *Store) DeleteMessage(ctx context.Context, id string, check func(*models.Message) error) (*models.Message, error) {
	var out *models.Message
	err := s.tx(ctx, func(tx *gorm.DB) error {
		m, err := getMessage(tx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(m); err != nil {
				return err
			}
		}
		if err := deleteMessages(tx, []string{id}); err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

func deleteMessages(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("message_id IN ?", ids).Delete(&messageHideRow{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&messageRow{}).Error
}

func (s *Store) ListConversation(ctx context.Context, a, b string) ([]*models.Message, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []messageRow
	err = db.Where("conv_id = ?", models.ConversationID(a, b)).
		Order("created_ts ASC").Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	hides, err := loadHides(db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model(hides[r.ID]))
	}
	return out, nil
}

func (s *Store) UnreadCounts(ctx context.Context, userID string) (models.UnreadCounts, error) {
	out := models.UnreadCounts{Direct: map[string]int{}, Groups: map[string]int{}}
	db, err := s.conn(ctx)
	if err != nil {
		return out, err
	}

	var direct []struct {
		Sender string
		N      int
	}
	err = db.Model(&messageRow{}).
		Select("sender, COUNT(*) AS n").
		Where("receiver = ? AND status = ?", userID, string(models.StatusDelivered)).
		Where("id NOT IN (?)", db.Model(&messageHideRow{}).Select("message_id").Where("user_id = ?", userID)).
		Group("sender").
		Scan(&direct).Error
	if err != nil {
		return out, err
	}
	for _, d := range direct {
		out.Direct[d.Sender] = d.N
	}

	var groups []struct {
		GroupID string
		N       int
	}
	err = db.Model(&groupUnreadRow{}).
		Select("group_id, COUNT(*) AS n").
		Where("user_id = ?", userID).
		Group("group_id").
		Scan(&groups).Error
	if err != nil {
		return out, err
	}
	for _, g := range groups {
		out.Groups[g.GroupID] = g.N
	}
	return out, nil
}

func (s *Store) Purge(ctx context.Context, opts store.PurgeOptions) (store.PurgeResult, error) {
	res := store.PurgeResult{DryRun: opts.DryRun}
	err := s.tx(ctx, func(tx *gorm.DB) error {
		var hidden []string
		err := tx.Raw(`SELECT m.id FROM messages m
			WHERE EXISTS (SELECT 1 FROM message_hides h WHERE h.message_id = m.id AND h.user_id = m.sender)
			AND EXISTS (SELECT 1 FROM message_hides h WHERE h.message_id = m.id AND h.user_id = m.receiver)`).
			Scan(&hidden).Error
		if err != nil {
			return err
		}
		res.HiddenByBoth = len(hidden)

		var expired, groupExpired []string
		if opts.Before > 0 {
			q := tx.Model(&messageRow{}).Where("created_ts < ?", opts.Before)
			if len(hidden) > 0 {
				q = q.Where("id NOT IN ?", hidden)
			}
			if err := q.Pluck("id", &expired).Error; err != nil {
				return err
			}
			err := tx.Model(&groupMessageRow{}).Where("created_ts < ?", opts.Before).Pluck("id", &groupExpired).Error
			if err != nil {
				return err
			}
		}
		res.Expired = len(expired)
		res.GroupExpired = len(groupExpired)
		if opts.DryRun {
			return nil
		}

		if err := deleteMessages(tx, append(hidden, expired...)); err != nil {
			return err
		}
		return deleteGroupMessages(tx, groupExpired)
	})
	return res, err
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	db, err := s.conn(ctx)
	if err != nil {
		return st, err
	}
	for _, c := range []struct {
		model any
		dst   *int
	}{
		{&userRow{}, &st.Users},
		{&groupRow{}, &st.Groups},
		{&messageRow{}, &st.Messages},
		{&groupMessageRow{}, &st.GroupMessages},
	} {
		var n int64
		if err := db.Model(c.model).Count(&n).Error; err != nil {
			return st, err
		}
		*c.dst = int(n)
	}
	return st, nil
}
