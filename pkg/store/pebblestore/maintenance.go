package pebblestore

import (
	"context"
	"encoding/json"
	"fmt"

	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
	"chatrelay/pkg/store/keys"
)

// UnreadCounts tallies the unread markers of userID per sender and per group.
func (s *Store) UnreadCounts(ctx context.Context, userID string) (models.UnreadCounts, error) {
	out := models.UnreadCounts{Direct: map[string]int{}, Groups: map[string]int{}}
	release, err := s.acquire(ctx)
	if err != nil {
		return out, err
	}
	defer release()

	err = s.scan(keys.UnreadPrefix(userID), func(k, _ []byte) error {
		p, err := keys.ParseUnreadKey(string(k))
		if err != nil {
			return err
		}
		out.Direct[p.Peer]++
		return nil
	})
	if err != nil {
		return out, err
	}
	err = s.scan(keys.GroupUnreadPrefix(userID), func(k, _ []byte) error {
		p, err := keys.ParseGroupUnreadKey(string(k))
		if err != nil {
			return err
		}
		out.Groups[p.Peer]++
		return nil
	})
	return out, err
}

// Purge removes messages hidden by both parties and, when opts.Before is set,
// every message created before it.
func (s *Store) Purge(ctx context.Context, opts store.PurgeOptions) (store.PurgeResult, error) {
	res := store.PurgeResult{DryRun: opts.DryRun}
	release, err := s.acquireWrite(ctx)
	if err != nil {
		return res, err
	}
	defer release()

	b := s.db.NewBatch()
	defer b.Close()

	err = s.scan(keys.MessagePrefix, func(_, v []byte) error {
		var m models.Message
		if err := json.Unmarshal(v, &m); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		switch {
		case m.HiddenByBoth():
			res.HiddenByBoth++
		case opts.Before > 0 && m.CreatedTS < opts.Before:
			res.Expired++
		default:
			return nil
		}
		if opts.DryRun {
			return nil
		}
		return deleteMessage(b, &m)
	})
	if err != nil {
		return res, err
	}

	if opts.Before > 0 {
		err = s.scan(keys.GroupMsgPrefix, func(_, v []byte) error {
			var m models.GroupMessage
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decode group message: %w", err)
			}
			if m.CreatedTS >= opts.Before {
				return nil
			}
			res.GroupExpired++
			if opts.DryRun {
				return nil
			}
			return deleteGroupMessage(b, &m)
		})
		if err != nil {
			return res, err
		}
	}

	if opts.DryRun {
		return res, nil
	}
	return res, s.commit(ctx, b)
}

// Stats counts the primary records.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	release, err := s.acquire(ctx)
	if err != nil {
		return st, err
	}
	defer release()

	for _, c := range []struct {
		prefix string
		dst    *int
	}{
		{"u:", &st.Users},
		{"g:", &st.Groups},
		{keys.MessagePrefix, &st.Messages},
		{keys.GroupMsgPrefix, &st.GroupMessages},
	} {
		n, err := s.count(c.prefix)
		if err != nil {
			return st, err
		}
		*c.dst = n
	}
	return st, nil
}
