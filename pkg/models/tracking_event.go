package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// TrackingEvent is one immutable audit line for a state-affecting action on
// a document. Rows are append-only; nothing updates or deletes them.
type TrackingEvent struct {
	ID           uint      `gorm:"primaryKey;column:tracking_id" json:"trackingId"`
	DocumentCode string    `gorm:"column:document_code;type:varchar(100);not null;index" json:"documentCode"`
	UserID       uint      `gorm:"column:user_id" json:"userId"`
	Action       string    `gorm:"type:text;not null" json:"action"`
	ActionDate   time.Time `gorm:"column:action_date;autoCreateTime" json:"actionDate"`
}

// TableName specifies the table name.
func (TrackingEvent) TableName() string {
	return "document_tracking"
}

// Create appends the event.
func (e *TrackingEvent) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(e,
		validation.Field(&e.DocumentCode, validation.Required),
		validation.Field(&e.Action, validation.Required),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Create(&e).Error
}

// AppendTrackingEvent records an audit line and, in the same transaction,
// queues it on the outbox for out-of-band publication. The caller decides
// what to do on failure; the routing engine downgrades a failed append to a
// log line rather than failing the parent operation.
func AppendTrackingEvent(tx *gorm.DB, code string, userID uint, action string) error {
	event := &TrackingEvent{
		DocumentCode: code,
		UserID:       userID,
		Action:       action,
	}
	if err := event.Create(tx); err != nil {
		return fmt.Errorf("error appending tracking event: %w", err)
	}

	outbox := &TrackingOutbox{
		EventID:      event.ID,
		DocumentCode: code,
		UserID:       userID,
		Action:       action,
	}
	if err := outbox.Create(tx); err != nil {
		return fmt.Errorf("error queueing tracking event on outbox: %w", err)
	}

	return nil
}

// ListTrackingEventsByCode returns the history for a document code in
// ascending order. The id tiebreaker keeps events written inside one
// transaction in insertion order.
func ListTrackingEventsByCode(db *gorm.DB, code string) ([]TrackingEvent, error) {
	if err := validation.Validate(code, validation.Required); err != nil {
		return nil, err
	}

	var events []TrackingEvent
	err := db.
		Where("document_code = ?", code).
		Order("action_date ASC").
		Order("tracking_id ASC").
		Find(&events).Error
	return events, err
}
