package tracker

import (
	"context"
	"net/mail"
	"strings"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
)

// RegisterUser creates or replaces a user record. Emails are unique and
// stored lower-cased.
func (t *Tracker) RegisterUser(ctx context.Context, u models.User) (*models.User, error) {
	if err := validUser("id", u.ID); err != nil {
		return nil, err
	}
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return nil, invalid("name is required")
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			return nil, invalid("malformed email %q", u.Email)
		}
	}
	if u.CreatedTS == 0 {
		u.CreatedTS = t.now().UnixNano()
	}
	if err := t.store.PutUser(ctx, &u); err != nil {
		return nil, fromStore(err, "email")
	}
	logger.Info("user_registered", "id", u.ID)
	return &u, nil
}

func (t *Tracker) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := validUser("id", id); err != nil {
		return nil, err
	}
	u, err := t.store.GetUser(ctx, id)
	if err != nil {
		return nil, fromStore(err, "user")
	}
	return u, nil
}

// FindUserByEmail looks a user up by email, case-insensitively.
func (t *Tracker) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, invalid("email is required")
	}
	u, err := t.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fromStore(err, "user")
	}
	return u, nil
}

// CreateGroup registers a group of existing users.
func (t *Tracker) CreateGroup(ctx context.Context, name string, members []string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name is required")
	}
	seen := make(map[string]bool, len(members))
	uniq := make([]string, 0, len(members))
	for _, m := range members {
		if err := validUser("members", m); err != nil {
			return nil, err
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		if _, err := t.store.GetUser(ctx, m); err != nil {
			return nil, fromStore(err, "member "+m)
		}
		uniq = append(uniq, m)
	}
	if len(uniq) < 2 {
		return nil, invalid("a group needs at least two members")
	}
	g := &models.Group{ID: t.newID(), Name: name, Members: uniq, CreatedTS: t.now().UnixNano()}
	if err := t.store.PutGroup(ctx, g); err != nil {
		return nil, fromStore(err, "group")
	}
	logger.Info("group_created", "id", g.ID, "members", len(uniq))
	return g, nil
}

func (t *Tracker) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	if err := validID("groupId", id); err != nil {
		return nil, err
	}
	g, err := t.store.GetGroup(ctx, id)
	if err != nil {
		return nil, fromStore(err, "group")
	}
	return g, nil
}
