package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// TrackingOutbox stores tracking events awaiting publication to the event
// stream. Implements the transactional outbox pattern: rows are written in
// the same transaction as their tracking event, then a relay polls pending
// rows and publishes them at least once.
type TrackingOutbox struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// EventID is the tracking event this row mirrors. The unique index is
	// the idempotency key: one publication record per audit line.
	EventID uint `gorm:"not null;uniqueIndex" json:"eventId"`

	DocumentCode string `gorm:"type:varchar(100);not null;index" json:"documentCode"`
	UserID       uint   `json:"userId"`
	Action       string `gorm:"type:text;not null" json:"action"`

	// Outbox state
	Status          string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	PublishAttempts int        `gorm:"default:0" json:"publishAttempts"`
	LastError       string     `gorm:"type:text" json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (TrackingOutbox) TableName() string {
	return "tracking_outbox"
}

// Outbox status values.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
)

// Create inserts the outbox row in state pending.
func (o *TrackingOutbox) Create(db *gorm.DB) error {
	if o.Status == "" {
		o.Status = OutboxStatusPending
	}

	if err := validation.ValidateStruct(o,
		validation.Field(&o.EventID, validation.Required),
		validation.Field(&o.DocumentCode, validation.Required),
		validation.Field(&o.Action, validation.Required),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Create(&o).Error
}

// FindPendingOutboxEntries returns up to limit pending rows, oldest first.
func FindPendingOutboxEntries(db *gorm.DB, limit int) ([]TrackingOutbox, error) {
	var entries []TrackingOutbox
	err := db.
		Where("status = ?", OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// MarkAsPublished records a successful publication.
func (o *TrackingOutbox) MarkAsPublished(db *gorm.DB) error {
	now := time.Now()
	return db.Model(&o).Updates(map[string]interface{}{
		"status":           OutboxStatusPublished,
		"published_at":     &now,
		"publish_attempts": gorm.Expr("publish_attempts + 1"),
		"last_error":       "",
	}).Error
}

// MarkAsFailed records a failed publication attempt. Failed rows stay in the
// table for inspection; the relay does not retry them automatically.
func (o *TrackingOutbox) MarkAsFailed(db *gorm.DB, cause error) error {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	return db.Model(&o).Updates(map[string]interface{}{
		"status":           OutboxStatusFailed,
		"publish_attempts": gorm.Expr("publish_attempts + 1"),
		"last_error":       lastError,
	}).Error
}

// DeleteOldPublishedEntries removes published rows older than the given age
// to keep the table bounded. Returns the number of rows removed.
func DeleteOldPublishedEntries(db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := db.
		Where("status = ? AND published_at < ?", OutboxStatusPublished, cutoff).
		Delete(&TrackingOutbox{})
	return result.RowsAffected, result.Error
}
