package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Entry is one persisted key/value pair.
type Entry struct {
	Key       string    `gorm:"column:entry_key;primaryKey;size:191"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Entry) TableName() string {
	return "kv_entries"
}

// Options controls write retries against a busy database.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
}

// Database is the sqlite-backed key/value store.
type Database struct {
	db     *gorm.DB
	logger *logrus.Logger
	opts   Options
}

func NewDatabase(dbPath string, opts Options, log *logrus.Logger) (*Database, error) {
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetOutput(os.Stdout)
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Wait for competing writers instead of failing immediately
	dsn := dbPath + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{db: db, logger: log, opts: opts}, nil
}

// GetDB exposes the underlying gorm handle.
func (d *Database) GetDB() *gorm.DB {
	return d.db
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry Entry
	err := d.db.WithContext(ctx).Where("entry_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return entry.Value, true, nil
}

func (d *Database) Set(ctx context.Context, key string, value []byte) error {
	return d.withRetry(ctx, "set", key, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&Entry{Key: key, Value: value}).Error
	})
}

func (d *Database) Remove(ctx context.Context, key string) error {
	return d.withRetry(ctx, "remove", key, func(tx *gorm.DB) error {
		return tx.Where("entry_key = ?", key).Delete(&Entry{}).Error
	})
}

// withRetry runs fn in a transaction, retrying while sqlite reports the
// database as busy or locked.
func (d *Database) withRetry(ctx context.Context, op, key string, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt <= d.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			d.logger.WithFields(logrus.Fields{
				"op":      op,
				"key":     key,
				"attempt": attempt,
			}).Info("Retrying busy database write")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.opts.RetryDelay):
			}
		}

		err = d.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			break
		}
	}

	d.logger.WithError(err).WithFields(logrus.Fields{"op": op, "key": key}).Error("Database write failed")
	return fmt.Errorf("failed to %s %q: %w", op, key, err)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
