// Package store holds what the storage engines share: sentinel errors and
// the small result types returned by maintenance calls.
package store

import (
	"errors"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrClosed is returned by every call on a closed store.
	ErrClosed = errors.New("store: closed")
	// ErrConflict is returned when a unique field is already taken.
	ErrConflict = errors.New("store: conflict")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// PurgeOptions selects what a retention pass removes.
type PurgeOptions struct {
	// Before removes messages created before this unix-nano timestamp. Zero
	// disables age based purging.
	Before int64
	// DryRun only counts.
	DryRun bool
}

// PurgeResult counts what a retention pass removed (or would remove).
type PurgeResult struct {
	HiddenByBoth int  `json:"hidden_by_both"`
	Expired      int  `json:"expired"`
	GroupExpired int  `json:"group_expired"`
	DryRun       bool `json:"dry_run"`
}

// Total is the number of records affected.
func (r PurgeResult) Total() int {
	return r.HiddenByBoth + r.Expired + r.GroupExpired
}

// Stats are record counts for the admin surface.
type Stats struct {
	Users         int `json:"users"`
	Groups        int `json:"groups"`
	Messages      int `json:"messages"`
	GroupMessages int `json:"group_messages"`
}
