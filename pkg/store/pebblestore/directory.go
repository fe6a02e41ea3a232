package pebblestore

import (
	"context"
	"fmt"
	"strings"

	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
	"chatrelay/pkg/store/keys"
)

// PutUser creates or replaces a user. The email must not belong to another user.
func (s *Store) PutUser(ctx context.Context, u *models.User) error {
	release, err := s.acquireWrite(ctx)
	if err != nil {
		return err
	}
	defer release()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	b := s.db.NewBatch()
	defer b.Close()

	if email != "" {
		owner, err := s.getString(keys.GenUserEmailKey(email))
		switch {
		case err == nil && owner != u.ID:
			return fmt.Errorf("email %s: %w", email, store.ErrConflict)
		case err != nil && !store.IsNotFound(err):
			return err
		}
	}
	var prev models.User
	if err := s.getJSON(keys.GenUserKey(u.ID), &prev); err == nil {
		if prevEmail := strings.ToLower(prev.Email); prevEmail != "" && prevEmail != email {
			if err := del(b, keys.GenUserEmailKey(prevEmail)); err != nil {
				return err
			}
		}
	} else if !store.IsNotFound(err) {
		return err
	}

	if err := setJSON(b, keys.GenUserKey(u.ID), u); err != nil {
		return err
	}
	if email != "" {
		if err := b.Set([]byte(keys.GenUserEmailKey(email)), []byte(u.ID), nil); err != nil {
			return err
		}
	}
	return s.commit(ctx, b)
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	var u models.User
	if err := s.getJSON(keys.GenUserKey(id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	id, err := s.getString(keys.GenUserEmailKey(email))
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := s.getJSON(keys.GenUserKey(id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// PutGroup creates or replaces a group and keeps the member index in step.
func (s *Store) PutGroup(ctx context.Context, g *models.Group) error {
	release, err := s.acquireWrite(ctx)
	if err != nil {
		return err
	}
	defer release()

	b := s.db.NewBatch()
	defer b.Close()

	var prev models.Group
	if err := s.getJSON(keys.GenGroupKey(g.ID), &prev); err == nil {
		for _, m := range prev.Members {
			if !g.HasMember(m) {
				if err := del(b, keys.GenUserGroupKey(m, g.ID)); err != nil {
					return err
				}
			}
		}
	} else if !store.IsNotFound(err) {
		return err
	}
	for _, m := range g.Members {
		if err := b.Set([]byte(keys.GenUserGroupKey(m, g.ID)), nil, nil); err != nil {
			return err
		}
	}
	if err := setJSON(b, keys.GenGroupKey(g.ID), g); err != nil {
		return err
	}
	return s.commit(ctx, b)
}

func (s *Store) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	var g models.Group
	if err := s.getJSON(keys.GenGroupKey(id), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListUserGroups returns the ids of the groups userID belongs to.
func (s *Store) ListUserGroups(ctx context.Context, userID string) ([]string, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	var out []string
	err = s.scan(keys.UserGroupPrefix(userID), func(k, _ []byte) error {
		gid, err := keys.ParseUserGroupKey(string(k))
		if err != nil {
			return err
		}
		out = append(out, gid)
		return nil
	})
	return out, err
}
