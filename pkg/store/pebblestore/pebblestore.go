// Package pebblestore persists users, groups and messages in a single pebble
// database. Reads go straight to pebble; every read-modify-write runs under
// one writer mutex and commits as a single batch.
package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/store"
	"chatrelay/pkg/store/keys"
)

type Store struct {
	db   *pebble.DB
	path string
	sync bool

	// life guards db against Close; writers additionally hold mu.
	life   sync.RWMutex
	closed bool
	mu     sync.Mutex
}

// Open opens or creates the database at path. syncWrites fsyncs every batch.
func Open(path string, syncWrites bool) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	s := &Store{db: db, path: path, sync: syncWrites}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("pebble_opened", "path", path, "sync_writes", syncWrites)
	return s, nil
}

func (s *Store) ensureSchema() error {
	v, closer, err := s.db.Get([]byte(keys.SystemVersionKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return s.db.Set([]byte(keys.SystemVersionKey), []byte(keys.SchemaVersion), pebble.Sync)
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	defer closer.Close()
	if string(v) != keys.SchemaVersion {
		return fmt.Errorf("unsupported schema version %q (want %q)", v, keys.SchemaVersion)
	}
	return nil
}

// Close flushes and closes the database. Calls after Close get store.ErrClosed.
func (s *Store) Close() error {
	s.life.Lock()
	defer s.life.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Flush(); err != nil {
		logger.Warn("pebble_flush_failed", "error", err)
	}
	return s.db.Close()
}

// Ready reports whether the store can serve requests.
func (s *Store) Ready() error {
	release, err := s.acquire(context.Background())
	if err != nil {
		return err
	}
	defer release()
	_, closer, err := s.db.Get([]byte(keys.SystemVersionKey))
	if err != nil {
		return fmt.Errorf("pebble not ready: %w", err)
	}
	closer.Close()
	return nil
}

// acquire pins the db open for the duration of one call.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.life.RLock()
	if s.closed {
		s.life.RUnlock()
		return nil, store.ErrClosed
	}
	return s.life.RUnlock, nil
}

// acquireWrite also takes the writer mutex.
func (s *Store) acquireWrite(ctx context.Context) (func(), error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		release()
	}, nil
}

func (s *Store) writeOpt() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// commit applies b unless ctx was cancelled first.
func (s *Store) commit(ctx context.Context, b *pebble.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}
	if err := b.Commit(s.writeOpt()); err != nil {
		logger.Error("pebble_apply_batch_failed", "error", err)
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Store) getJSON(key string, v any) error {
	return getJSONFrom(s.db, key, v)
}

func getJSONFrom(r pebble.Reader, key string, v any) error {
	val, closer, err := r.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return store.ErrNotFound
		}
		logger.Error("get_key_failed", "key", key, "error", err)
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(val, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) getString(key string) (string, error) {
	val, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	return string(val), nil
}

func setJSON(b *pebble.Batch, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set([]byte(key), data, nil)
}

func del(b *pebble.Batch, key string) error {
	return b.Delete([]byte(key), nil)
}

// scan visits every key under prefix in order.
func (s *Store) scan(prefix string, fn func(k, v []byte) error) error {
	return scanFrom(s.db, prefix, fn)
}

func scanFrom(r pebble.Reader, prefix string, fn func(k, v []byte) error) error {
	iter, err := r.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keys.PrefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *Store) count(prefix string) (int, error) {
	n := 0
	err := s.scan(prefix, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}
