// Package storetest is a behaviour suite every storage engine must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
)

// Engine is the full surface of a storage engine.
type Engine interface {
	PutUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	PutGroup(ctx context.Context, g *models.Group) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	ListUserGroups(ctx context.Context, userID string) ([]string, error)

	CreateMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	UpdateMessages(ctx context.Context, ids []string, fn func(*models.Message) (bool, error)) ([]*models.Message, error)
	DeleteMessage(ctx context.Context, id string, check func(*models.Message) error) (*models.Message, error)
	ListConversation(ctx context.Context, a, b string) ([]*models.Message, error)

	CreateGroupMessage(ctx context.Context, m *models.GroupMessage) error
	GetGroupMessage(ctx context.Context, id string) (*models.GroupMessage, error)
	UpdateGroupMessages(ctx context.Context, ids []string, fn func(*models.GroupMessage) (bool, error)) ([]*models.GroupMessage, error)
	ListGroupMessages(ctx context.Context, groupID string) ([]*models.GroupMessage, error)

	UnreadCounts(ctx context.Context, userID string) (models.UnreadCounts, error)
	Purge(ctx context.Context, opts store.PurgeOptions) (store.PurgeResult, error)
	Stats(ctx context.Context) (store.Stats, error)
	Ready() error
	Close() error
}

// Opener returns a fresh, empty engine. The suite closes it.
type Opener func(t *testing.T) Engine

var seq uint64

func direct(from, to string, ts int64) *models.Message {
	seq++
	return &models.Message{
		ID:        uuid.NewString(),
		Sender:    from,
		Receiver:  to,
		Body:      "body " + from + ">" + to,
		Status:    models.StatusDelivered,
		CreatedTS: ts,
		Seq:       seq,
	}
}

// Run executes the suite against engines produced by open.
func Run(t *testing.T, open Opener) {
	ctx := context.Background()

	fresh := func(t *testing.T) Engine {
		e := open(t)
		t.Cleanup(func() { _ = e.Close() })
		return e
	}

	t.Run("Users", func(t *testing.T) {
		e := fresh(t)
		require.NoError(t, e.PutUser(ctx, &models.User{ID: "alice", Name: "Alice", Email: "alice@example.com"}))
		require.NoError(t, e.PutUser(ctx, &models.User{ID: "bob", Name: "Bob", Email: "bob@example.com"}))

		u, err := e.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice", u.Name)

		u, err = e.FindUserByEmail(ctx, "bob@example.com")
		require.NoError(t, err)
		assert.Equal(t, "bob", u.ID)

		err = e.PutUser(ctx, &models.User{ID: "mallory", Name: "M", Email: "bob@example.com"})
		assert.True(t, store.IsConflict(err), "expected conflict, got %v", err)

		// changing an email frees the old one
		require.NoError(t, e.PutUser(ctx, &models.User{ID: "bob", Name: "Bob", Email: "robert@example.com"}))
		_, err = e.FindUserByEmail(ctx, "bob@example.com")
		assert.True(t, store.IsNotFound(err))
		require.NoError(t, e.PutUser(ctx, &models.User{ID: "mallory", Name: "M", Email: "bob@example.com"}))

		_, err = e.GetUser(ctx, "nobody")
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("Groups", func(t *testing.T) {
		e := fresh(t)
		g := &models.Group{ID: uuid.NewString(), Name: "G", Members: []string{"carol", "alice", "bob"}}
		require.NoError(t, e.PutGroup(ctx, g))

		got, err := e.GetGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"carol", "alice", "bob"}, got.Members)

		ids, err := e.ListUserGroups(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{g.ID}, ids)

		g.Members = []string{"carol", "bob"}
		require.NoError(t, e.PutGroup(ctx, g))
		ids, err = e.ListUserGroups(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, ids)

		_, err = e.GetGroup(ctx, uuid.NewString())
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("ConversationOrder", func(t *testing.T) {
		e := fresh(t)
		m1 := direct("alice", "bob", 100)
		m2 := direct("bob", "alice", 100)
		m3 := direct("alice", "bob", 50)
		other := direct("alice", "carol", 10)
		for _, m := range []*models.Message{m1, m2, m3, other} {
			require.NoError(t, e.CreateMessage(ctx, m))
		}
		list, err := e.ListConversation(ctx, "bob", "alice")
		require.NoError(t, err)
		var ids []string
		for _, m := range list {
			ids = append(ids, m.ID)
		}
		assert.Equal(t, []string{m3.ID, m1.ID, m2.ID}, ids)
	})

	t.Run("UpdateIsAtomic", func(t *testing.T) {
		e := fresh(t)
		m1 := direct("alice", "bob", 1)
		m2 := direct("alice", "bob", 2)
		require.NoError(t, e.CreateMessage(ctx, m1))
		require.NoError(t, e.CreateMessage(ctx, m2))

		boom := errors.New("boom")
		_, err := e.UpdateMessages(ctx, []string{m1.ID, m2.ID}, func(m *models.Message) (bool, error) {
			if m.ID == m2.ID {
				return false, boom
			}
			return m.MarkRead(), nil
		})
		require.ErrorIs(t, err, boom)

		_, err = e.UpdateMessages(ctx, []string{m1.ID, uuid.NewString()}, func(m *models.Message) (bool, error) {
			return m.MarkRead(), nil
		})
		require.True(t, store.IsNotFound(err), "expected not found, got %v", err)

		got, err := e.GetMessage(ctx, m1.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDelivered, got.Status)

		changed, err := e.UpdateMessages(ctx, []string{m1.ID, m1.ID, m2.ID}, func(m *models.Message) (bool, error) {
			return m.MarkRead(), nil
		})
		require.NoError(t, err)
		assert.Len(t, changed, 2)
	})

	t.Run("UnreadCounts", func(t *testing.T) {
		e := fresh(t)
		a1 := direct("alice", "bob", 1)
		a2 := direct("alice", "bob", 2)
		c1 := direct("carol", "bob", 3)
		out := direct("bob", "alice", 4)
		for _, m := range []*models.Message{a1, a2, c1, out} {
			require.NoError(t, e.CreateMessage(ctx, m))
		}
		_, err := e.UpdateMessages(ctx, []string{a1.ID}, func(m *models.Message) (bool, error) { return m.MarkRead(), nil })
		require.NoError(t, err)
		_, err = e.UpdateMessages(ctx, []string{c1.ID}, func(m *models.Message) (bool, error) { return m.Hide("bob"), nil })
		require.NoError(t, err)

		gid := uuid.NewString()
		gm := &models.GroupMessage{ID: uuid.NewString(), Sender: "alice", Group: gid, Body: "g", Unread: []string{"bob", "carol"}, CreatedTS: 5, Seq: 1}
		require.NoError(t, e.CreateGroupMessage(ctx, gm))

		counts, err := e.UnreadCounts(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"alice": 1}, counts.Direct)
		assert.Equal(t, map[string]int{gid: 1}, counts.Groups)

		_, err = e.UpdateGroupMessages(ctx, []string{gm.ID}, func(m *models.GroupMessage) (bool, error) {
			return m.RemoveUnread("bob"), nil
		})
		require.NoError(t, err)
		counts, err = e.UnreadCounts(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, counts.Groups)

		got, err := e.GetGroupMessage(ctx, gm.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"carol"}, got.Unread)
	})

	t.Run("Delete", func(t *testing.T) {
		e := fresh(t)
		m := direct("alice", "bob", 1)
		require.NoError(t, e.CreateMessage(ctx, m))

		denied := errors.New("denied")
		_, err := e.DeleteMessage(ctx, m.ID, func(*models.Message) error { return denied })
		require.ErrorIs(t, err, denied)

		gone, err := e.DeleteMessage(ctx, m.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, m.ID, gone.ID)

		_, err = e.GetMessage(ctx, m.ID)
		assert.True(t, store.IsNotFound(err))
		list, err := e.ListConversation(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Empty(t, list)
		counts, err := e.UnreadCounts(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, counts.Direct)
	})

	t.Run("GroupHistory", func(t *testing.T) {
		e := fresh(t)
		gid := uuid.NewString()
		var want []string
		for i := int64(1); i <= 3; i++ {
			m := &models.GroupMessage{ID: uuid.NewString(), Sender: "alice", Group: gid, Body: "g", Unread: []string{"bob"}, CreatedTS: 7, Seq: uint64(i)}
			require.NoError(t, e.CreateGroupMessage(ctx, m))
			want = append(want, m.ID)
		}
		list, err := e.ListGroupMessages(ctx, gid)
		require.NoError(t, err)
		var got []string
		for _, m := range list {
			got = append(got, m.ID)
		}
		assert.Equal(t, want, got)
	})

	t.Run("Purge", func(t *testing.T) {
		e := fresh(t)
		hidden := direct("alice", "bob", 500)
		old := direct("alice", "bob", 10)
		recent := direct("alice", "bob", 1000)
		for _, m := range []*models.Message{hidden, old, recent} {
			require.NoError(t, e.CreateMessage(ctx, m))
		}
		_, err := e.UpdateMessages(ctx, []string{hidden.ID}, func(m *models.Message) (bool, error) {
			m.Hide("alice")
			return m.Hide("bob"), nil
		})
		require.NoError(t, err)
		gold := &models.GroupMessage{ID: uuid.NewString(), Sender: "alice", Group: uuid.NewString(), Body: "g", CreatedTS: 10, Seq: 1}
		require.NoError(t, e.CreateGroupMessage(ctx, gold))

		opts := store.PurgeOptions{Before: 100, DryRun: true}
		res, err := e.Purge(ctx, opts)
		require.NoError(t, err)
		assert.Equal(t, store.PurgeResult{HiddenByBoth: 1, Expired: 1, GroupExpired: 1, DryRun: true}, res)
		st, err := e.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, st.Messages, "dry run removes nothing")

		opts.DryRun = false
		res, err = e.Purge(ctx, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Total())

		st, err = e.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.Messages)
		assert.Equal(t, 0, st.GroupMessages)
		_, err = e.GetMessage(ctx, recent.ID)
		assert.NoError(t, err)
	})

	t.Run("ListDuringDelete", func(t *testing.T) {
		e := fresh(t)
		gid := uuid.NewString()
		var ids []string
		for i := 0; i < 300; i++ {
			m := direct("alice", "bob", int64(i+1))
			require.NoError(t, e.CreateMessage(ctx, m))
			ids = append(ids, m.ID)
			gm := &models.GroupMessage{ID: uuid.NewString(), Sender: "alice", Group: gid, Body: "g", Unread: []string{"bob"}, CreatedTS: int64(i + 1), Seq: uint64(i + 1)}
			require.NoError(t, e.CreateGroupMessage(ctx, gm))
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, id := range ids {
				if _, err := e.DeleteMessage(ctx, id, nil); err != nil {
					t.Errorf("delete %s: %v", id, err)
					return
				}
			}
			if _, err := e.Purge(ctx, store.PurgeOptions{Before: 1 << 40}); err != nil {
				t.Errorf("purge: %v", err)
			}
		}()
		for r := 0; r < 8; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 40; i++ {
					if _, err := e.ListConversation(ctx, "bob", "alice"); err != nil {
						t.Errorf("list conversation: %v", err)
						return
					}
					if _, err := e.ListGroupMessages(ctx, gid); err != nil {
						t.Errorf("list group: %v", err)
						return
					}
				}
			}()
		}
		wg.Wait()

		list, err := e.ListConversation(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Empty(t, list)
		glist, err := e.ListGroupMessages(ctx, gid)
		require.NoError(t, err)
		assert.Empty(t, glist)
	})

	t.Run("Closed", func(t *testing.T) {
		e := open(t)
		require.NoError(t, e.Ready())
		require.NoError(t, e.Close())
		require.NoError(t, e.Close())

		_, err := e.GetUser(ctx, "alice")
		assert.ErrorIs(t, err, store.ErrClosed)
		assert.Error(t, e.Ready())
	})

	t.Run("Cancelled", func(t *testing.T) {
		e := fresh(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := e.CreateMessage(cctx, direct("alice", "bob", 1))
		assert.ErrorIs(t, err, context.Canceled)
		st, err := e.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, st.Messages)
	})
}
