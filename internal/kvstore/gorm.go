package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

const (
	saveAttempts = 5
	saveBackoff  = 20 * time.Millisecond
)

// collectionRow is one stored collection.
type collectionRow struct {
	Key       string `gorm:"column:coll_key;primaryKey;size:255"`
	Data      []byte
	Version   int64
	UpdatedAt time.Time
}

func (collectionRow) TableName() string { return "kv_collections" }

// GormBackend stores collections in a SQL table through GORM. It is used with
// the embedded sqlite driver for single-node deployments.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend wraps db. Call Migrate before first use.
func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

// Migrate creates the collections table.
func (g *GormBackend) Migrate(ctx context.Context) error {
	return g.db.WithContext(ctx).AutoMigrate(&collectionRow{})
}

func (g *GormBackend) Load(ctx context.Context, key string) (Entry, bool, error) {
	var row collectionRow
	err := g.db.WithContext(ctx).Where("coll_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("load %s: %w", key, err)
	}
	return Entry{Data: row.Data, Version: row.Version}, true, nil
}

// Save retries when another writer holds the database or wins the first
// insert of key. Contention that outlasts the retries is reported as
// ErrConcurrentModification rather than as a backend failure.
func (g *GormBackend) Save(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	var err error
	for attempt := 0; attempt < saveAttempts; attempt++ {
		var next int64
		next, err = g.save(ctx, key, data, expected)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, ErrConcurrentModification) {
			return 0, err
		}
		if !isContention(err) {
			return 0, fmt.Errorf("save %s: %w", key, err)
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("save %s: %w", key, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * saveBackoff):
		}
	}
	return 0, fmt.Errorf("save %s: %v: %w", key, err, ErrConcurrentModification)
}

func (g *GormBackend) save(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	var next int64
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row collectionRow
		err := tx.Where("coll_key = ?", key).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := checkVersion(0, expected); err != nil {
				return err
			}
			next = 1
			return tx.Create(&collectionRow{Key: key, Data: data, Version: next, UpdatedAt: time.Now()}).Error
		case err != nil:
			return err
		}
		if err := checkVersion(row.Version, expected); err != nil {
			return err
		}
		next = row.Version + 1
		res := tx.Model(&collectionRow{}).
			Where("coll_key = ? AND version = ?", key, row.Version).
			Updates(map[string]any{"data": data, "version": next, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentModification
		}
		return nil
	})
	return next, err
}

// isContention reports a locked database or a lost race to insert the same
// key.
func isContention(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return true
	case sqlite3.ErrConstraint:
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func (g *GormBackend) Delete(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Where("coll_key = ?", key).Delete(&collectionRow{}).Error
}

func (g *GormBackend) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
