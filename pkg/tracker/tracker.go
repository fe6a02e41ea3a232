// Package tracker owns message records and their delivery and read state.
// It persists first and only then hands events to the gateway; delivery to a
// user with no live connection is never an error.
package tracker

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"chatrelay/pkg/models"
	"chatrelay/pkg/store/keys"
	"chatrelay/pkg/timeutil"
)

// Outbound event names.
const (
	EventMessage          = "message"
	EventMessageRead      = "messageRead"
	EventMessageDeleted   = "messageDeleted"
	EventMessageGroup     = "messageGroup"
	EventMessageGroupRead = "messageGroupRead"
)

// MaxBodyLen caps message bodies, in runes.
const MaxBodyLen = 16 * 1024

// Directory resolves users and groups.
type Directory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	ListUserGroups(ctx context.Context, userID string) ([]string, error)
}

// Store is the persistence the tracker needs. Update and delete callbacks
// run under the store's write lock; an error from them aborts the call with
// nothing applied.
type Store interface {
	Directory
	PutUser(ctx context.Context, u *models.User) error
	PutGroup(ctx context.Context, g *models.Group) error

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
}

// Gateway delivers events to live connections. Both calls are
// fire-and-forget and return how many connections were handed the event.
type Gateway interface {
	Deliver(userID, event string, payload any) int
	// DeliverGroup reaches the connections of users that joined groupID.
	DeliverGroup(groupID string, userIDs []string, event string, payload any) int
}

type Tracker struct {
	store Store
	gw    Gateway
	now   func() time.Time
	newID func() string

	mu     sync.Mutex
	lastTS int64
	seq    uint64
}

type Option func(*Tracker)

// WithClock overrides the creation timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(t *Tracker) { t.now = fn }
}

// WithIDGenerator overrides message and group id generation.
func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) { t.newID = fn }
}

func New(store Store, gw Gateway, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		gw:    gw,
		now:   timeutil.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// stamp returns a creation timestamp that never goes backwards plus a
// sequence number breaking ties.
func (t *Tracker) stamp() (int64, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := t.now().UnixNano()
	if ts < t.lastTS {
		ts = t.lastTS
	}
	t.lastTS = ts
	t.seq++
	return ts, t.seq
}

func validUser(field, id string) error {
	if err := keys.ValidateUserID(id); err != nil {
		return invalid("%s: %v", field, err)
	}
	return nil
}

func validID(field, id string) error {
	if err := keys.ValidateID(id); err != nil {
		return invalid("%s: malformed id %q", field, id)
	}
	return nil
}

func cleanBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", invalid("body is empty")
	}
	if utf8.RuneCountInString(body) > MaxBodyLen {
		return "", invalid("body exceeds %d characters", MaxBodyLen)
	}
	return body, nil
}

// dedupe validates and de-duplicates a batch of ids, keeping first-seen order.
func dedupe(field string, ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := validID(field, id); err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
