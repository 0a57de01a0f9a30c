// Package thread stores replies attached to documents and tracks per-viewer
// seen state. Replies are owned jointly by the two correspondents; a reply
// becomes seen when the counterpart opens the parent document, never the
// author.
package thread

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/courier-forge/courier/pkg/models"
)

const opTimeout = 10 * time.Second

// Service is the reply thread service.
type Service struct {
	db  *gorm.DB
	log hclog.Logger
}

// NewService returns a Service backed by db.
func NewService(db *gorm.DB, log hclog.Logger) *Service {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Service{
		db:  db,
		log: log.Named("thread"),
	}
}

// PostInput is a validated reply submission.
type PostInput struct {
	DocumentID uint
	AuthorID   uint
	ReceiverID uint
	Text       string
	FileName   *string
}

// Validate validates the reply submission.
func (in PostInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.DocumentID, validation.Required),
		validation.Field(&in.AuthorID, validation.Required),
		validation.Field(&in.ReceiverID, validation.Required),
		validation.Field(&in.Text, validation.Required),
	)
}

// Post stores a reply with a fresh unique code and seen=false, and appends
// a tracking event against the parent document's code. Fails with
// models.ErrNotFound when the parent document or author does not exist.
func (s *Service) Post(ctx context.Context, in PostInput) (*models.Reply, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var doc models.Document
	if err := doc.Get(db, in.DocumentID); err != nil {
		return nil, err
	}

	var author models.User
	if err := author.Get(db, in.AuthorID); err != nil {
		return nil, err
	}

	reply := &models.Reply{
		Code:       uuid.New().String(),
		DocumentID: in.DocumentID,
		UserID:     in.AuthorID,
		ReceiverID: in.ReceiverID,
		Text:       in.Text,
		FileName:   in.FileName,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := reply.Create(tx); err != nil {
			return err
		}

		action := fmt.Sprintf("Reply %q  by  %q", in.Text, author.Email)
		if err := models.AppendTrackingEvent(tx, doc.Code, author.ID, action); err != nil {
			s.log.Warn("tracking event append failed",
				"document_code", doc.Code,
				"error", err,
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("reply posted",
		"reply_code", reply.Code,
		"document_code", doc.Code,
		"author", author.Email,
	)
	return reply, nil
}

// ListAll returns every reply, annotated with document and party details.
func (s *Service) ListAll(ctx context.Context) ([]models.ReplyListing, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return models.ListReplies(s.db.WithContext(ctx))
}

// ListByDocument returns the replies on a document.
func (s *Service) ListByDocument(ctx context.Context, documentID uint) ([]models.ReplyListing, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return models.ListRepliesByDocument(s.db.WithContext(ctx), documentID)
}

// ListByReceiver returns the replies addressed to a user.
func (s *Service) ListByReceiver(ctx context.Context, receiverID uint) ([]models.ReplyListing, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return models.ListRepliesByReceiver(s.db.WithContext(ctx), receiverID)
}

// MarkSeen flips seen on every reply of the document written by someone
// other than the viewer. Seen is monotonic: it never reverts. Returns the
// number of matched replies; zero is a no-op, not an error.
func (s *Service) MarkSeen(ctx context.Context, documentID, viewerID uint) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	affected, err := models.MarkRepliesSeen(s.db.WithContext(ctx), documentID, viewerID)
	if err != nil {
		return 0, err
	}

	s.log.Debug("replies marked seen",
		"document_id", documentID,
		"viewer_id", viewerID,
		"affected", affected,
	)
	return affected, nil
}

// CountUnseenForReceiver counts unseen replies addressed to the user.
func (s *Service) CountUnseenForReceiver(ctx context.Context, userID uint) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return models.CountUnseenForReceiver(s.db.WithContext(ctx), userID)
}

// CountUnseenExcludingUser counts unseen replies addressed to anyone but
// the user. Distinct contract from CountUnseenForReceiver; the two are not
// interchangeable.
func (s *Service) CountUnseenExcludingUser(ctx context.Context, userID uint) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return models.CountUnseenExcludingUser(s.db.WithContext(ctx), userID)
}
