package models

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// Recipient is one addressee's private delivery status for a document.
// The composite unique index on (document_code, user_id) guarantees at most
// one entry per pair and is what makes concurrent forwards race-safe.
type Recipient struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	DocumentCode string `gorm:"type:varchar(100);not null;uniqueIndex:idx_recipients_document_user" json:"documentCode"`
	UserID       uint   `gorm:"not null;uniqueIndex:idx_recipients_document_user" json:"userId"`

	// Status is one of the Status* constants.
	Status string `gorm:"type:varchar(20);not null;default:'Pending'" json:"status"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// TableName specifies the table name.
func (Recipient) TableName() string {
	return "recipients"
}

// Recipient status values.
//
// Per-entry state machine:
//
//	Pending --(recipient opens document)--> Received
//	Received --(recipient archives)--> Archived
//	Pending|Received|Archived --(admin)--> Ended
//
// Ended is terminal for the entry; other recipients keep independent state.
const (
	StatusPending  = "Pending"
	StatusReceived = "Received"
	StatusArchived = "Archived"
	StatusEnded    = "Ended"
)

// ValidStatus reports whether s is a known recipient status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusReceived, StatusArchived, StatusEnded:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows moving from one
// status to another. A same-status transition is always allowed (it is a
// successful no-op at the registry level).
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch {
	case to == StatusEnded:
		return from != StatusEnded
	case from == StatusPending && to == StatusReceived:
		return true
	case from == StatusReceived && to == StatusArchived:
		return true
	}
	return false
}

// Create inserts the entry with status Pending unless another status was set
// explicitly. A second entry for the same (document, user) pair fails with
// ErrDuplicateRecipient.
func (r *Recipient) Create(db *gorm.DB) error {
	if r.Status == "" {
		r.Status = StatusPending
	}

	if err := validation.ValidateStruct(r,
		validation.Field(&r.DocumentCode, validation.Required),
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Status, validation.Required,
			validation.In(StatusPending, StatusReceived, StatusArchived, StatusEnded)),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if err := db.Create(&r).Error; err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("document %q, user %d: %w",
				r.DocumentCode, r.UserID, ErrDuplicateRecipient)
		}
		return err
	}
	return nil
}

// Get retrieves the entry for a (document code, user) pair.
func (r *Recipient) Get(db *gorm.DB, code string, userID uint) error {
	if err := validation.Validate(code, validation.Required); err != nil {
		return err
	}
	if err := validation.Validate(userID, validation.Required); err != nil {
		return err
	}

	err := db.
		Where("document_code = ? AND user_id = ?", code, userID).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("recipient entry (%s, %d): %w", code, userID, ErrNotFound)
	}
	return err
}

// SetStatus applies a status transition. It returns true when the stored
// status actually changed, false for a same-status no-op. Disallowed
// transitions fail with ErrInvalidTransition and leave the entry untouched.
func (r *Recipient) SetStatus(db *gorm.DB, to string) (bool, error) {
	if !ValidStatus(to) {
		return false, fmt.Errorf("status %q: %w", to, ErrInvalidTransition)
	}
	if !CanTransition(r.Status, to) {
		return false, fmt.Errorf("%s -> %s: %w", r.Status, to, ErrInvalidTransition)
	}
	if r.Status == to {
		return false, nil
	}

	if err := db.
		Model(&r).
		Update("status", to).
		Error; err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes exactly this entry.
func (r *Recipient) Delete(db *gorm.DB) error {
	if err := validation.Validate(r.ID, validation.Required); err != nil {
		return err
	}
	return db.Delete(&r).Error
}

// ListRecipientsByDocument returns every recipient entry for a document,
// with the user association loaded for display names.
func ListRecipientsByDocument(db *gorm.DB, code string) ([]Recipient, error) {
	var recipients []Recipient
	err := db.
		Preload("User").
		Where("document_code = ?", code).
		Order("id ASC").
		Find(&recipients).Error
	return recipients, err
}

// ListRecipientsByUser returns every recipient entry held by a user.
func ListRecipientsByUser(db *gorm.DB, userID uint) ([]Recipient, error) {
	var recipients []Recipient
	err := db.
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&recipients).Error
	return recipients, err
}
