package ledger

import (
	"context"
	"fmt"
	"time"

	"catalogue-ingester/core/reconcile"

	"gorm.io/gorm"
)

// DefaultLimit is the number of entries Recent returns when no limit is given.
const DefaultLimit = 50

// FailedKey is one row of the failed_keys table.
type FailedKey struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	BatchID    string    `gorm:"column:batch_id;size:128;index" json:"batch_id"`
	Topic      string    `gorm:"column:topic;size:255" json:"topic"`
	Bucket     string    `gorm:"column:bucket;size:255" json:"bucket"`
	Key        string    `gorm:"column:object_key;size:1024" json:"key"`
	ChangeType string    `gorm:"column:change_type;size:16" json:"change_type"`
	Class      string    `gorm:"column:class;size:16;index" json:"class"`
	Reason     string    `gorm:"column:reason;type:text" json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName overrides the table name used by FailedKey.
func (FailedKey) TableName() string {
	return "failed_keys"
}

// Ledger stores failed keys.
type Ledger struct {
	db *gorm.DB
}

// New creates a Ledger on db.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Migrate creates or updates the failed_keys table.
func (l *Ledger) Migrate(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&FailedKey{}); err != nil {
		return fmt.Errorf("failed to migrate failed_keys: %w", err)
	}
	return nil
}

// Record stores every failed key of outcome.
func (l *Ledger) Record(ctx context.Context, topic string, batch *reconcile.ChangeBatch, outcome *reconcile.Outcome) error {
	failures := outcome.Failures()
	if len(failures) == 0 {
		return nil
	}

	rows := make([]FailedKey, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, FailedKey{
			BatchID:    batch.ID,
			Topic:      topic,
			Bucket:     batch.BucketName,
			Key:        f.Key,
			ChangeType: string(f.ChangeType),
			Class:      string(f.Class),
			Reason:     f.Reason,
		})
	}

	if err := l.db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return fmt.Errorf("failed to record %d failed keys: %w", len(rows), err)
	}
	return nil
}

// Recent returns the newest entries first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]FailedKey, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var rows []FailedKey
	if err := l.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query failed keys: %w", err)
	}
	return rows, nil
}
