// Package sqlstore is the SQLite storage engine, built on gorm. Batch
// updates run inside a single transaction.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
)

type Store struct {
	db     *gorm.DB
	path   string
	closed atomic.Bool
}

// slogWriter routes gorm's logger into the service log at debug level.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...interface{}) {
	logger.Debug("gorm", "msg", strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens or creates the SQLite file at path and migrates the schema.
func Open(path string, syncWrites bool) (*Store, error) {
	sync := "NORMAL"
	if syncWrites {
		sync = "FULL"
	}
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL&_sync=%s", path, sync)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(slogWriter{}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		logger.Error("sqlite_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("configure sqlite pool: %w", err)
	}
	// one writer at a time; transactions serialize on the connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	err = db.AutoMigrate(
		&userRow{},
		&groupRow{},
		&groupMemberRow{},
		&messageRow{},
		&messageHideRow{},
		&groupMessageRow{},
		&groupUnreadRow{},
	)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	logger.Info("sqlite_opened", "path", path, "sync_writes", syncWrites)
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ready() error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// conn returns a context-bound session or store.ErrClosed.
func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.db.WithContext(ctx), nil
}

// tx runs fn in a transaction and rolls back if ctx is done before commit.
func (s *Store) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		return ctx.Err()
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// PutUser creates or replaces a user. The email must not belong to another user.
func (s *Store) PutUser(ctx context.Context, u *models.User) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if u.Email != "" {
			var n int64
			err := tx.Model(&userRow{}).
				Where("LOWER(email) = ? AND id <> ?", strings.ToLower(u.Email), u.ID).
				Count(&n).Error
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("email %s: %w", u.Email, store.ErrConflict)
			}
		}
		row := toUserRow(u)
		return tx.Save(&row).Error
	})
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var row userRow
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var row userRow
	err = db.Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

func (s *Store) PutGroup(ctx context.Context, g *models.Group) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		row := groupRow{ID: g.ID, Name: g.Name, CreatedTS: g.CreatedTS}
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", g.ID).Delete(&groupMemberRow{}).Error; err != nil {
			return err
		}
		if len(g.Members) == 0 {
			return nil
		}
		members := make([]groupMemberRow, 0, len(g.Members))
		for i, m := range g.Members {
			members = append(members, groupMemberRow{GroupID: g.ID, UserID: m, Pos: i})
		}
		return tx.Create(&members).Error
	})
}

func (s *Store) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var row groupRow
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	var members []groupMemberRow
	if err := db.Where("group_id = ?", id).Order("pos ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	g := &models.Group{ID: row.ID, Name: row.Name, CreatedTS: row.CreatedTS, Members: make([]string, 0, len(members))}
	for _, m := range members {
		g.Members = append(g.Members, m.UserID)
	}
	return g, nil
}

func (s *Store) ListUserGroups(ctx context.Context, userID string) ([]string, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	err = db.Model(&groupMemberRow{}).Where("user_id = ?", userID).Order("group_id ASC").Pluck("group_id", &ids).Error
	return ids, err
}
