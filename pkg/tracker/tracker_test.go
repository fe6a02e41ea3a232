package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/pkg/models"
	"chatrelay/pkg/store/pebblestore"
	"chatrelay/pkg/tracker"
)

type delivery struct {
	user    string
	group   string
	event   string
	payload any
}

// recorder is an in-memory gateway that remembers every delivery.
type recorder struct {
	mu  sync.Mutex
	got []delivery
}

func (r *recorder) Deliver(userID, event string, payload any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, delivery{user: userID, event: event, payload: payload})
	return 1
}

func (r *recorder) DeliverGroup(groupID string, userIDs []string, event string, payload any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range userIDs {
		r.got = append(r.got, delivery{user: u, group: groupID, event: event, payload: payload})
	}
	return len(userIDs)
}

func (r *recorder) events(user, event string) []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []delivery
	for _, d := range r.got {
		if d.user == user && d.event == event {
			out = append(out, d)
		}
	}
	return out
}

type fixture struct {
	tr    *tracker.Tracker
	gw    *recorder
	store *pebblestore.Store
	ctx   context.Context
}

func newFixture(t *testing.T, opts ...tracker.Option) *fixture {
	t.Helper()
	st, err := pebblestore.Open(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	gw := &recorder{}
	f := &fixture{tr: tracker.New(st, gw, opts...), gw: gw, store: st, ctx: context.Background()}
	for _, id := range []string{"alice", "bob", "carol", "xavier", "yara"} {
		_, err := f.tr.RegisterUser(f.ctx, models.User{ID: id, Name: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) send(t *testing.T, from, to, body string) *models.Message {
	t.Helper()
	m, err := f.tr.Send(f.ctx, from, to, body, "")
	require.NoError(t, err)
	return m
}

func TestSendToOfflineReceiverThenFetch(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", "bob", "hi")

	hist, err := f.tr.FetchHistory(f.ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "hi", hist[0].Body)
	assert.Equal(t, models.StatusDelivered, hist[0].Status)
	assert.Equal(t, "alice", hist[0].Sender.ID)
	assert.Nil(t, hist[0].Reply)

	got := f.gw.events("bob", tracker.EventMessage)
	require.Len(t, got, 1)
	view, ok := got[0].payload.(models.MessageView)
	require.True(t, ok)
	assert.Equal(t, "hi", view.Body)
	assert.Empty(t, f.gw.events("alice", tracker.EventMessage), "sender must not get its own message event")
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	m := f.send(t, "alice", "bob", "hi")

	changed, err := f.tr.MarkRead(f.ctx, "bob", []string{m.ID})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, models.StatusRead, changed[0].Status)

	changed, err = f.tr.MarkRead(f.ctx, "bob", []string{m.ID})
	require.NoError(t, err)
	assert.Empty(t, changed)

	hist, err := f.tr.FetchHistory(f.ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, models.StatusRead, hist[0].Status)

	receipts := f.gw.events("alice", tracker.EventMessageRead)
	require.Len(t, receipts, 1)
	assert.Equal(t, tracker.ReadReceipt{Reader: "bob", IDs: []string{m.ID}}, receipts[0].payload)
}

func TestMarkReadBatchIsAtomic(t *testing.T) {
	f := newFixture(t)
	m1 := f.send(t, "alice", "bob", "one")
	m2 := f.send(t, "alice", "bob", "two")
	mine := f.send(t, "bob", "alice", "from bob")

	cases := []struct {
		name string
		ids  []string
		kind error
	}{
		{"foreign", []string{m1.ID, mine.ID}, tracker.ErrForbidden},
		{"unknown", []string{m1.ID, uuid.NewString()}, tracker.ErrNotFound},
		{"malformed", []string{m1.ID, "junk"}, tracker.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.tr.MarkRead(f.ctx, "bob", tc.ids)
			require.ErrorIs(t, err, tc.kind)
			got, err := f.store.GetMessage(f.ctx, m1.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusDelivered, got.Status, "nothing may be applied")
		})
	}

	changed, err := f.tr.MarkRead(f.ctx, "bob", []string{m1.ID, m1.ID, m2.ID})
	require.NoError(t, err)
	assert.Len(t, changed, 2)

	changed, err = f.tr.MarkRead(f.ctx, "bob", nil)
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestDeleteForMe(t *testing.T) {
	f := newFixture(t)
	m := f.send(t, "alice", "bob", "secret")

	require.NoError(t, f.tr.DeleteForMe(f.ctx, "bob", m.ID))
	require.NoError(t, f.tr.DeleteForMe(f.ctx, "bob", m.ID), "hiding twice is a no-op")

	bobView, err := f.tr.FetchHistory(f.ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, bobView)

	aliceView, err := f.tr.FetchHistory(f.ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, aliceView, 1)
	assert.Equal(t, models.StatusDelivered, aliceView[0].Status)

	assert.ErrorIs(t, f.tr.DeleteForMe(f.ctx, "carol", m.ID), tracker.ErrForbidden)
	assert.ErrorIs(t, f.tr.DeleteForMe(f.ctx, "bob", uuid.NewString()), tracker.ErrNotFound)
}

func TestDeleteForEveryone(t *testing.T) {
	f := newFixture(t)
	m := f.send(t, "alice", "bob", "oops")

	assert.ErrorIs(t, f.tr.DeleteForEveryone(f.ctx, "bob", m.ID), tracker.ErrForbidden)
	require.NoError(t, f.tr.DeleteForEveryone(f.ctx, "alice", m.ID))
	assert.ErrorIs(t, f.tr.DeleteForEveryone(f.ctx, "alice", m.ID), tracker.ErrNotFound)

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		hist, err := f.tr.FetchHistory(f.ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.Empty(t, hist)
	}
	notices := f.gw.events("bob", tracker.EventMessageDeleted)
	require.Len(t, notices, 1)
	assert.Equal(t, tracker.DeletedNotice{ID: m.ID, Sender: "alice"}, notices[0].payload)
}

func TestReplyReferences(t *testing.T) {
	f := newFixture(t)
	target := f.send(t, "alice", "bob", "question?")
	reply, err := f.tr.Send(f.ctx, "bob", "alice", "answer", target.ID)
	require.NoError(t, err)

	hist, err := f.tr.FetchHistory(f.ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.NotNil(t, hist[1].Reply)
	assert.Equal(t, "question?", hist[1].Reply.Body)

	// hard-deleting the target leaves the reference dangling; it renders null
	require.NoError(t, f.tr.DeleteForEveryone(f.ctx, "alice", target.ID))
	hist, err = f.tr.FetchHistory(f.ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, reply.ID, hist[0].ID)
	assert.Nil(t, hist[0].Reply)

	stored, err := f.store.GetMessage(f.ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, target.ID, stored.ReplyTo, "the stored reference is not rewritten")

	other := f.send(t, "alice", "carol", "elsewhere")
	_, err = f.tr.Send(f.ctx, "bob", "alice", "x", other.ID)
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)
	_, err = f.tr.Send(f.ctx, "bob", "alice", "x", uuid.NewString())
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	_, err = f.tr.Send(f.ctx, "bob", "alice", "x", "not-an-id")
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)
}

func TestReplyToHiddenTargetIsNullForReader(t *testing.T) {
	f := newFixture(t)
	target := f.send(t, "alice", "bob", "question?")
	_, err := f.tr.Send(f.ctx, "alice", "bob", "follow up", target.ID)
	require.NoError(t, err)

	require.NoError(t, f.tr.DeleteForMe(f.ctx, "bob", target.ID))

	bobView, err := f.tr.FetchHistory(f.ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, bobView, 1)
	assert.Equal(t, "follow up", bobView[0].Body)
	assert.Nil(t, bobView[0].Reply, "a hidden target must not leak through the reply")

	aliceView, err := f.tr.FetchHistory(f.ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, aliceView, 2)
	require.NotNil(t, aliceView[1].Reply)
	assert.Equal(t, "question?", aliceView[1].Reply.Body)
}

func TestFetchHistoryDuringDeleteForEveryone(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for i := 0; i < 500; i++ {
		ids = append(ids, f.send(t, "alice", "bob", "m").ID)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, id := range ids {
			if err := f.tr.DeleteForEveryone(f.ctx, "alice", id); err != nil {
				t.Errorf("delete %s: %v", id, err)
				return
			}
		}
	}()
	for r := 0; r < 16; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if _, err := f.tr.FetchHistory(f.ctx, "bob", "alice"); err != nil {
					t.Errorf("fetch history: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	hist, err := f.tr.FetchHistory(f.ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name     string
		from, to string
		body     string
		kind     error
	}{
		{"self", "alice", "alice", "hi", tracker.ErrInvalidArgument},
		{"blank", "alice", "bob", "   ", tracker.ErrInvalidArgument},
		{"unknown receiver", "alice", "zed", "hi", tracker.ErrNotFound},
		{"unknown sender", "zed", "alice", "hi", tracker.ErrNotFound},
		{"bad id", "al:ice", "bob", "hi", tracker.ErrInvalidArgument},
	}
	for _, tc := range cases {
		_, err := f.tr.Send(f.ctx, tc.from, tc.to, tc.body, "")
		if !errors.Is(err, tc.kind) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.kind, err)
		}
	}

	_, err := f.tr.FetchHistory(f.ctx, "alice", "alice")
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)
	_, err = f.tr.FetchHistory(f.ctx, "alice", "zed")
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestHistoryOrderWithFrozenClock(t *testing.T) {
	frozen := time.Unix(1_700_000_000, 0)
	f := newFixture(t, tracker.WithClock(func() time.Time { return frozen }))
	for _, body := range []string{"1", "2", "3", "4"} {
		f.send(t, "alice", "bob", body)
	}
	hist, err := f.tr.FetchHistory(f.ctx, "bob", "alice")
	require.NoError(t, err)
	var bodies []string
	for _, v := range hist {
		bodies = append(bodies, v.Body)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, bodies)
}

func TestGroupUnreadShrinks(t *testing.T) {
	f := newFixture(t)
	g, err := f.tr.CreateGroup(f.ctx, "G", []string{"alice", "xavier", "yara"})
	require.NoError(t, err)

	m, err := f.tr.SendGroupMessage(f.ctx, "alice", g.ID, "hello group")
	require.NoError(t, err)
	assert.Equal(t, []string{"xavier", "yara"}, m.Unread)

	assert.Len(t, f.gw.events("xavier", tracker.EventMessageGroup), 1)
	assert.Len(t, f.gw.events("yara", tracker.EventMessageGroup), 1)
	assert.Empty(t, f.gw.events("alice", tracker.EventMessageGroup))

	changed, err := f.tr.MarkGroupRead(f.ctx, "yara", []string{m.ID})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, []string{"xavier"}, changed[0].Unread)

	changed, err = f.tr.MarkGroupRead(f.ctx, "yara", []string{m.ID})
	require.NoError(t, err)
	assert.Empty(t, changed)

	hist, err := f.tr.FetchGroupHistory(f.ctx, "xavier", g.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, []string{"xavier"}, hist[0].Unread)
	assert.Equal(t, "alice", hist[0].Sender.Name)

	changed, err = f.tr.MarkGroupRead(f.ctx, "xavier", []string{m.ID})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Empty(t, changed[0].Unread)

	// an empty list is terminal; the message stays
	hist, err = f.tr.FetchGroupHistory(f.ctx, "alice", g.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Empty(t, hist[0].Unread)

	assert.Len(t, f.gw.events("alice", tracker.EventMessageGroupRead), 2)
}

func TestGroupMembershipEnforced(t *testing.T) {
	f := newFixture(t)
	g, err := f.tr.CreateGroup(f.ctx, "G", []string{"alice", "xavier"})
	require.NoError(t, err)
	m, err := f.tr.SendGroupMessage(f.ctx, "alice", g.ID, "members only")
	require.NoError(t, err)

	_, err = f.tr.SendGroupMessage(f.ctx, "carol", g.ID, "let me in")
	assert.ErrorIs(t, err, tracker.ErrForbidden)
	_, err = f.tr.MarkGroupRead(f.ctx, "carol", []string{m.ID})
	assert.ErrorIs(t, err, tracker.ErrForbidden)
	_, err = f.tr.FetchGroupHistory(f.ctx, "carol", g.ID)
	assert.ErrorIs(t, err, tracker.ErrForbidden)
	assert.ErrorIs(t, f.tr.CanJoinGroup(f.ctx, "carol", g.ID), tracker.ErrForbidden)
	assert.NoError(t, f.tr.CanJoinGroup(f.ctx, "xavier", g.ID))

	_, err = f.tr.SendGroupMessage(f.ctx, "alice", uuid.NewString(), "nowhere")
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	_, err = f.tr.CreateGroup(f.ctx, "solo", []string{"alice"})
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)
}

func TestUnreadCounts(t *testing.T) {
	f := newFixture(t)
	m1 := f.send(t, "alice", "bob", "one")
	f.send(t, "alice", "bob", "two")
	f.send(t, "carol", "bob", "three")
	_, err := f.tr.MarkRead(f.ctx, "bob", []string{m1.ID})
	require.NoError(t, err)

	g, err := f.tr.CreateGroup(f.ctx, "G", []string{"alice", "bob"})
	require.NoError(t, err)
	_, err = f.tr.SendGroupMessage(f.ctx, "alice", g.ID, "group hi")
	require.NoError(t, err)

	counts, err := f.tr.UnreadCounts(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 1, "carol": 1}, counts.Direct)
	assert.Equal(t, map[string]int{g.ID: 1}, counts.Groups)

	// hiding an unread message drops it from the hider's count only
	hist, err := f.tr.FetchHistory(f.ctx, "bob", "carol")
	require.NoError(t, err)
	require.NoError(t, f.tr.DeleteForMe(f.ctx, "bob", hist[0].ID))
	counts, err = f.tr.UnreadCounts(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 1}, counts.Direct)
}

func TestUnavailableStore(t *testing.T) {
	f := newFixture(t)
	m := f.send(t, "alice", "bob", "hi")

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	_, err := f.tr.MarkRead(ctx, "bob", []string{m.ID})
	assert.ErrorIs(t, err, tracker.ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	got, err := f.store.GetMessage(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)

	require.NoError(t, f.store.Close())
	_, err = f.tr.Send(f.ctx, "alice", "bob", "after close", "")
	assert.ErrorIs(t, err, tracker.ErrUnavailable)
	assert.Equal(t, "unavailable", tracker.Code(err))
}

func TestDirectory(t *testing.T) {
	f := newFixture(t)
	u, err := f.tr.FindUserByEmail(f.ctx, "  ALICE@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)

	_, err = f.tr.RegisterUser(f.ctx, models.User{ID: "mallory", Name: "M", Email: "alice@example.com"})
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)

	_, err = f.tr.FindUserByEmail(f.ctx, "nobody@example.com")
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	_, err = f.tr.RegisterUser(f.ctx, models.User{ID: "eve", Name: "Eve", Email: "not an email"})
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)
}
