package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/pkg/config"
	"chatrelay/pkg/models"
	"chatrelay/pkg/store/pebblestore"
	"chatrelay/pkg/tracker"
)

type nopGateway struct{}

func (nopGateway) Deliver(string, string, any) int                { return 0 }
func (nopGateway) DeliverGroup(string, []string, string, any) int { return 0 }

func TestLeaseIsExclusive(t *testing.T) {
	l := newFileLease(t.TempDir())

	ok, err := l.Acquire("a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire("b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "live lease must not be taken over")

	assert.ErrorIs(t, l.Renew("b", time.Minute), errNotOwner)
	require.NoError(t, l.Renew("a", time.Minute))
	assert.ErrorIs(t, l.Release("b"), errNotOwner)
	require.NoError(t, l.Release("a"))

	ok, err = l.Acquire("b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpiredLeaseIsReplaced(t *testing.T) {
	l := newFileLease(t.TempDir())
	ok, err := l.Acquire("dead", -time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire("live", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release("live"))
}

func TestRunOncePurgesExpiredMessages(t *testing.T) {
	ctx := context.Background()
	st, err := pebblestore.Open(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	now := time.Now()
	clock := now.Add(-60 * 24 * time.Hour)
	tr := tracker.New(st, nopGateway{}, tracker.WithClock(func() time.Time { return clock }))
	for _, id := range []string{"alice", "bob"} {
		_, err := tr.RegisterUser(ctx, models.User{ID: id, Name: id})
		require.NoError(t, err)
	}
	_, err = tr.Send(ctx, "alice", "bob", "old", "")
	require.NoError(t, err)
	clock = now
	fresh, err := tr.Send(ctx, "alice", "bob", "fresh", "")
	require.NoError(t, err)

	m := NewManager(st, config.RetentionConfig{Period: "30d", LockTTL: config.Duration(time.Minute)}, t.TempDir())

	res, err := m.RunOnce(ctx, true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Expired)

	res, err = m.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total())

	hist, err := tr.FetchHistory(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, fresh.ID, hist[0].ID)
}

func TestRunOnceRespectsForeignLease(t *testing.T) {
	dir := t.TempDir()
	st, err := pebblestore.Open(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	other := newFileLease(dir)
	ok, err := other.Acquire("other-process", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	m := NewManager(st, config.RetentionConfig{}, dir)
	_, err = m.RunOnce(context.Background(), false)
	assert.True(t, errors.Is(err, ErrBusy))

	require.NoError(t, other.Release("other-process"))
	_, err = m.RunOnce(context.Background(), false)
	assert.NoError(t, err)
}

func TestStartDisabledIsNoop(t *testing.T) {
	m := NewManager(nil, config.RetentionConfig{Enabled: false}, t.TempDir())
	cancel := Start(context.Background(), m)
	cancel()
}
