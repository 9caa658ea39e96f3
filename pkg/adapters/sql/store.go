// Package sql persists conversation progress in a relational database
// through GORM. SQLite and MySQL-compatible servers are supported.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/ddialog/pkg/domain"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Record is the row stored per conversation. The indexed columns mirror the
// payload so operators can query positions without decoding JSON.
type Record struct {
	ConversationID string `gorm:"primaryKey;size:191"`
	DialogName     string `gorm:"size:128;index"`
	StepIndex      int
	Confirmation   string `gorm:"size:16"`
	Payload        string `gorm:"type:text"`
	UpdatedAt      time.Time
}

// TableName pins the table name regardless of naming strategy.
func (Record) TableName() string {
	return "conversation_progress"
}

// Store implements ports.ProgressStore on top of a *gorm.DB.
type Store struct {
	db *gorm.DB
}

// Open connects to the database and migrates the progress table.
// dialect is "sqlite" or "mysql".
func Open(dialect, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch dialect {
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("sql: unsupported dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sql: connect %s: %w", dialect, err)
	}

	if dialector.Name() == "sqlite" {
		// SQLite serializes writers; in-memory databases exist per connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sql: pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db)
}

// New wraps an existing connection and migrates the progress table.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("sql: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts the progress row.
func (s *Store) Save(ctx context.Context, conversationID string, progress *domain.Progress) error {
	data, err := domain.EncodeProgress(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	rec := Record{
		ConversationID: conversationID,
		DialogName:     progress.DialogName,
		StepIndex:      progress.StepIndex,
		Confirmation:   string(progress.Confirmation),
		Payload:        string(data),
		UpdatedAt:      time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("sql: save %s: %w", conversationID, err)
	}
	return nil
}

// Load fetches and decodes the progress row.
func (s *Store) Load(ctx context.Context, conversationID string) (*domain.Progress, error) {
	var rec Record
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, fmt.Errorf("sql: load %s: %w", conversationID, err)
	}

	p, err := domain.DecodeProgress([]byte(rec.Payload))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return p, nil
}

// Delete removes the row. Deleting a missing conversation is not an error.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&Record{}).Error
	if err != nil {
		return fmt.Errorf("sql: delete %s: %w", conversationID, err)
	}
	return nil
}

// List returns every stored conversation id in ascending order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Order("conversation_id").
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("sql: list: %w", err)
	}
	return ids, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
