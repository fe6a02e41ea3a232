package pebblestore_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/require"

	"chatrelay/pkg/models"
	"chatrelay/pkg/store/keys"
	"chatrelay/pkg/store/pebblestore"
	"chatrelay/pkg/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Engine {
		s, err := pebblestore.Open(t.TempDir(), false)
		require.NoError(t, err)
		return s
	})
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	s, err := pebblestore.Open(dir, true)
	require.NoError(t, err)
	require.NoError(t, s.PutUser(context.Background(), &models.User{ID: "alice", Name: "Alice"}))
	require.NoError(t, s.Close())

	s, err = pebblestore.Open(dir, true)
	require.NoError(t, err)
	defer s.Close()
	u, err := s.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", u.Name)
}

func TestRejectsUnknownSchema(t *testing.T) {
	dir := t.TempDir()
	db, err := pebble.Open(dir, &pebble.Options{})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte(keys.SystemVersionKey), []byte("99"), pebble.Sync))
	require.NoError(t, db.Close())

	if _, err := pebblestore.Open(dir, false); err == nil {
		t.Fatalf("expected schema version error")
	}
}
