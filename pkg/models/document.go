package models

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// Document is a routed piece of correspondence. The code is assigned by the
// sender, globally unique, and immutable once the record exists; everything
// except the attachment reference is set at creation time and never updated.
type Document struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	// Code is the externally visible document identifier. Uniqueness is
	// enforced by the index, not by a check-then-insert.
	Code string `gorm:"column:document_code;type:varchar(100);uniqueIndex;not null" json:"documentCode"`

	SenderID    uint   `gorm:"not null;index" json:"senderId"`
	Subject     string `gorm:"type:varchar(500);not null" json:"subject"`
	Description string `gorm:"type:text" json:"description"`

	// Priority is one of the Priority* constants.
	Priority string `gorm:"column:prioritization;type:varchar(20);not null" json:"prioritization"`

	// Classification is one of the Classification* constants.
	Classification string `gorm:"type:varchar(20);not null" json:"classification"`

	DateOfLetter time.Time `gorm:"column:date_of_letter" json:"dateOfLetter"`
	Deadline     time.Time `json:"deadline"`

	// FileName references an attachment in the content store. Nil when the
	// document was submitted without a file.
	FileName *string `gorm:"type:varchar(255)" json:"fileName,omitempty"`

	Sender     *User       `gorm:"foreignKey:SenderID" json:"-"`
	Recipients []Recipient `gorm:"foreignKey:DocumentCode;references:Code" json:"-"`
}

// TableName specifies the table name.
func (Document) TableName() string {
	return "documents"
}

// Priority values.
const (
	PriorityPrecedence = "Precedence"
	PriorityOscar      = "Oscar"
	PriorityZulo       = "Zulo"
)

// Classification values.
const (
	ClassificationConfidential = "Confidential"
	ClassificationUnclassified = "Un-Classified"
)

// Create creates a new document. A duplicate code fails with
// ErrDuplicateCode and leaves no row behind.
func (d *Document) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(d,
		validation.Field(&d.Code, validation.Required),
		validation.Field(&d.SenderID, validation.Required),
		validation.Field(&d.Subject, validation.Required),
		validation.Field(&d.Priority, validation.Required,
			validation.In(PriorityPrecedence, PriorityOscar, PriorityZulo)),
		validation.Field(&d.Classification, validation.Required,
			validation.In(ClassificationConfidential, ClassificationUnclassified)),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if err := db.Create(&d).Error; err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("document %q: %w", d.Code, ErrDuplicateCode)
		}
		return err
	}
	return nil
}

// Get retrieves a document by its numeric primary key.
func (d *Document) Get(db *gorm.DB, id uint) error {
	if err := validation.Validate(id, validation.Required); err != nil {
		return err
	}

	err := db.First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return err
}

// GetByCode retrieves a document by its document code.
func (d *Document) GetByCode(db *gorm.DB, code string) error {
	if err := validation.Validate(code, validation.Required); err != nil {
		return err
	}

	err := db.Where("document_code = ?", code).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("document %q: %w", code, ErrNotFound)
	}
	return err
}

// ListDocumentsBySender returns the documents sent by a user, most recent
// first. The ordering is a contract consumers rely on.
func ListDocumentsBySender(db *gorm.DB, senderID uint) ([]Document, error) {
	var docs []Document
	err := db.
		Preload("Sender").
		Where("sender_id = ?", senderID).
		Order("created_at DESC").
		Find(&docs).Error
	return docs, err
}

// ListAllDocuments returns every document, most recent first.
func ListAllDocuments(db *gorm.DB) ([]Document, error) {
	var docs []Document
	err := db.
		Preload("Sender").
		Order("created_at DESC").
		Find(&docs).Error
	return docs, err
}

// ListDocumentsByRecipient returns the documents that have a recipient entry
// for the given user, most recent first.
func ListDocumentsByRecipient(db *gorm.DB, userID uint) ([]Document, error) {
	var docs []Document
	err := db.
		Preload("Sender").
		Joins("JOIN recipients ON recipients.document_code = documents.document_code").
		Where("recipients.user_id = ?", userID).
		Order("documents.created_at DESC").
		Find(&docs).Error
	return docs, err
}
