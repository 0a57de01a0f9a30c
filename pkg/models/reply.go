package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// Reply is a threaded message attached to a document, exchanged between two
// correspondents. Seen tracking is independent per reply: a reply becomes
// seen when the counterpart (not the author) opens the parent document, and
// never reverts to unseen.
type Reply struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Code is the externally visible reply identifier, stable once issued.
	Code string `gorm:"column:reply_code;type:varchar(64);uniqueIndex;not null" json:"replyCode"`

	DocumentID uint `gorm:"column:document_id;not null;index" json:"documentId"`

	// UserID is the reply's author; ReceiverID the counterpart in the
	// exchange.
	UserID     uint `gorm:"column:user_id;not null" json:"userId"`
	ReceiverID uint `gorm:"column:receiver_id;not null;index" json:"receiverId"`

	Text     string  `gorm:"column:reply_text;type:text;not null" json:"replyText"`
	FileName *string `gorm:"type:varchar(255)" json:"fileName,omitempty"`

	Seen bool `gorm:"not null;default:false" json:"seen"`

	CreatedAt time.Time `gorm:"column:date_of_reply" json:"dateOfReply"`

	Document *Document `gorm:"foreignKey:DocumentID" json:"-"`
}

// TableName specifies the table name.
func (Reply) TableName() string {
	return "replies"
}

// Create inserts the reply with seen=false.
func (r *Reply) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(r,
		validation.Field(&r.Code, validation.Required),
		validation.Field(&r.DocumentID, validation.Required),
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.ReceiverID, validation.Required),
		validation.Field(&r.Text, validation.Required),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Create(&r).Error
}

// ReplyListing is the read projection consumers render: the reply plus the
// parent document's subject/description/code and both parties' usernames.
// Field names mirror the SQL aliases the read surface has always exposed.
type ReplyListing struct {
	ID                  uint      `json:"id"`
	Code                string    `json:"reply_code" gorm:"column:reply_code"`
	DocumentID          uint      `json:"document_id" gorm:"column:document_id"`
	UserID              uint      `json:"user_id" gorm:"column:user_id"`
	ReceiverID          uint      `json:"receiver_id" gorm:"column:receiver_id"`
	Text                string    `json:"reply_text" gorm:"column:reply_text"`
	FileName            *string   `json:"file_name,omitempty" gorm:"column:file_name"`
	Seen                bool      `json:"seen"`
	CreatedAt           time.Time `json:"date_of_reply" gorm:"column:date_of_reply"`
	DocumentSubject     string    `json:"document_subject" gorm:"column:document_subject"`
	DocumentDescription string    `json:"document_description" gorm:"column:document_description"`
	DocumentCode        string    `json:"document_code" gorm:"column:document_code"`
	SenderName          string    `json:"sender_name" gorm:"column:sender_name"`
	ReceiverName        string    `json:"receiver_name" gorm:"column:receiver_name"`
}

const replyListingSelect = `replies.id, replies.reply_code, replies.document_id,
replies.user_id, replies.receiver_id, replies.reply_text, replies.file_name,
replies.seen, replies.date_of_reply,
documents.subject AS document_subject,
documents.description AS document_description,
documents.document_code AS document_code,
sender.username AS sender_name,
receiver.username AS receiver_name`

func replyListingQuery(db *gorm.DB) *gorm.DB {
	return db.
		Table("replies").
		Select(replyListingSelect).
		Joins("JOIN documents ON replies.document_id = documents.id").
		Joins("JOIN users AS sender ON replies.user_id = sender.user_id").
		Joins("JOIN users AS receiver ON replies.receiver_id = receiver.user_id").
		Order("replies.id ASC")
}

// ListReplies returns every reply, annotated for display.
func ListReplies(db *gorm.DB) ([]ReplyListing, error) {
	var listings []ReplyListing
	err := replyListingQuery(db).Scan(&listings).Error
	return listings, err
}

// ListRepliesByReceiver returns the replies addressed to a user.
func ListRepliesByReceiver(db *gorm.DB, receiverID uint) ([]ReplyListing, error) {
	var listings []ReplyListing
	err := replyListingQuery(db).
		Where("replies.receiver_id = ?", receiverID).
		Scan(&listings).Error
	return listings, err
}

// ListRepliesByDocument returns the replies on a document.
func ListRepliesByDocument(db *gorm.DB, documentID uint) ([]ReplyListing, error) {
	var listings []ReplyListing
	err := replyListingQuery(db).
		Where("replies.document_id = ?", documentID).
		Scan(&listings).Error
	return listings, err
}

// MarkRepliesSeen flips seen on every reply of the document written by
// someone other than the viewer. Replies authored by the viewer are left
// alone. Returns the number of matched replies; zero matches is not an
// error.
func MarkRepliesSeen(db *gorm.DB, documentID, viewerID uint) (int64, error) {
	result := db.
		Model(&Reply{}).
		Where("document_id = ? AND user_id != ?", documentID, viewerID).
		Update("seen", true)
	return result.RowsAffected, result.Error
}

// CountUnseenForReceiver counts unseen replies addressed to the user.
func CountUnseenForReceiver(db *gorm.DB, userID uint) (int64, error) {
	var count int64
	err := db.
		Model(&Reply{}).
		Where("receiver_id = ? AND seen = ?", userID, false).
		Count(&count).Error
	return count, err
}

// CountUnseenExcludingUser counts unseen replies addressed to anyone but the
// user. This backs the sender-side badge; it is a distinct contract from
// CountUnseenForReceiver, not its mirror image.
func CountUnseenExcludingUser(db *gorm.DB, userID uint) (int64, error) {
	var count int64
	err := db.
		Model(&Reply{}).
		Where("receiver_id != ? AND seen = ?", userID, false).
		Count(&count).Error
	return count, err
}
