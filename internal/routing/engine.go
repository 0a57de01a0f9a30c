// Package routing orchestrates the document lifecycle: submission,
// per-recipient status transitions, forwarding, recipient removal and the
// tracking history. Each public operation is one transactional unit; the
// relational store is the single synchronization point, so concurrent
// engine instances are safe to run side by side.
package routing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/courier-forge/courier/internal/identity"
	"github.com/courier-forge/courier/pkg/models"
)

// opTimeout bounds every storage operation so no request blocks
// indefinitely.
const opTimeout = 10 * time.Second

// Engine is the routing engine.
type Engine struct {
	db       *gorm.DB
	resolver *identity.Resolver
	log      hclog.Logger
}

// NewEngine returns an Engine backed by db.
func NewEngine(db *gorm.DB, log hclog.Logger) *Engine {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Engine{
		db:       db,
		resolver: identity.NewResolver(db, log),
		log:      log.Named("routing"),
	}
}

// SubmitInput is a validated document submission.
type SubmitInput struct {
	Code            string
	Sender          identity.Profile
	RecipientEmails []string
	Subject         string
	Description     string
	Priority        string
	Classification  string
	DateOfLetter    time.Time
	Deadline        time.Time

	// FileName references an attachment already written to the content
	// store. The blob is written before this record ever references it.
	FileName *string
}

// Validate validates the submission.
func (in SubmitInput) Validate() error {
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.Code, validation.Required),
		validation.Field(&in.Subject, validation.Required),
		validation.Field(&in.Priority, validation.Required,
			validation.In(models.PriorityPrecedence, models.PriorityOscar, models.PriorityZulo)),
		validation.Field(&in.Classification, validation.Required,
			validation.In(models.ClassificationConfidential, models.ClassificationUnclassified)),
		validation.Field(&in.RecipientEmails,
			validation.Required,
			validation.Each(validation.Required, is.Email)),
	); err != nil {
		return err
	}
	return in.Sender.Validate()
}

// Submit resolves the sender and every recipient, then atomically creates
// the document, one Pending recipient entry per addressee, and the
// "Document Created" tracking event. A duplicate code fails with
// models.ErrDuplicateCode and leaves no rows behind.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*models.Document, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// Resolve every address before any write: a submission with any
	// unresolvable recipient is rejected whole.
	recipients, err := e.resolver.ResolveAll(ctx, dedupe(in.RecipientEmails))
	if err != nil {
		return nil, err
	}

	sender, err := e.resolver.ResolveOrCreate(ctx, in.Sender)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		Code:           in.Code,
		SenderID:       sender.ID,
		Subject:        in.Subject,
		Description:    in.Description,
		Priority:       in.Priority,
		Classification: in.Classification,
		DateOfLetter:   in.DateOfLetter,
		Deadline:       in.Deadline,
		FileName:       in.FileName,
	}

	err = e.withRetry(ctx, func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := doc.Create(tx); err != nil {
				return err
			}

			for _, recipient := range recipients {
				entry := &models.Recipient{
					DocumentCode: doc.Code,
					UserID:       recipient.ID,
					Status:       models.StatusPending,
				}
				if err := entry.Create(tx); err != nil {
					return err
				}
			}

			e.appendEvent(tx, doc.Code, sender.ID, "Document Created")
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("document submitted",
		"document_code", doc.Code,
		"sender", sender.Email,
		"recipients", len(recipients),
	)
	return doc, nil
}

// MarkViewed transitions the viewer's entry Pending -> Received on first
// view. Viewing an entry that is already Received or Archived is an
// idempotent success and appends no second tracking event.
func (e *Engine) MarkViewed(ctx context.Context, code, viewerEmail string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	viewer, err := e.resolver.Resolve(ctx, viewerEmail)
	if err != nil {
		return err
	}

	return e.withRetry(ctx, func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var entry models.Recipient
			if err := entry.Get(tx, code, viewer.ID); err != nil {
				return err
			}
			if entry.Status != models.StatusPending {
				return nil
			}

			if _, err := entry.SetStatus(tx, models.StatusReceived); err != nil {
				return err
			}

			e.appendEvent(tx, code, viewer.ID,
				fmt.Sprintf("Status updated to %s by %s", models.StatusReceived, viewerEmail))
			return nil
		})
	})
}

// Archive transitions the viewer's entry Received -> Archived. Archiving an
// entry that never went through Received fails with
// models.ErrInvalidTransition.
func (e *Engine) Archive(ctx context.Context, code, viewerEmail string) error {
	return e.SetStatus(ctx, code, viewerEmail, models.StatusArchived)
}

// SetStatus applies an explicit status transition for the user's entry and
// appends a tracking event when the stored status actually changed. A
// same-status write succeeds without an event.
func (e *Engine) SetStatus(ctx context.Context, code, email, status string) error {
	if !models.ValidStatus(status) {
		return fmt.Errorf("status %q: %w", status, models.ErrInvalidTransition)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	user, err := e.resolver.Resolve(ctx, email)
	if err != nil {
		return err
	}

	return e.withRetry(ctx, func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var entry models.Recipient
			if err := entry.Get(tx, code, user.ID); err != nil {
				return err
			}

			changed, err := entry.SetStatus(tx, status)
			if err != nil {
				return err
			}
			if !changed {
				return nil
			}

			e.appendEvent(tx, code, user.ID,
				fmt.Sprintf("Status updated to %s by %s", status, email))
			return nil
		})
	})
}

// Forward adds a Pending recipient entry for a new addressee without
// touching existing entries. Forwarding to a user that already holds an
// entry fails with models.ErrDuplicateRecipient; the uniqueness constraint
// makes exactly one of two concurrent forwards for the same pair succeed.
func (e *Engine) Forward(ctx context.Context, code, fromEmail, toEmail string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc models.Document
	if err := doc.GetByCode(e.db.WithContext(ctx), code); err != nil {
		return err
	}

	target, err := e.resolver.Resolve(ctx, toEmail)
	if err != nil {
		return err
	}

	// The audit line is attributed to the forwarding user when one is
	// given; otherwise to the new recipient.
	actorID := target.ID
	if fromEmail != "" {
		actor, err := e.resolver.Resolve(ctx, fromEmail)
		if err != nil {
			return err
		}
		actorID = actor.ID
	}

	err = e.withRetry(ctx, func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			entry := &models.Recipient{
				DocumentCode: code,
				UserID:       target.ID,
				Status:       models.StatusPending,
			}
			if err := entry.Create(tx); err != nil {
				return err
			}

			e.appendEvent(tx, code, actorID,
				fmt.Sprintf("Document forwarded to %q", toEmail))
			return nil
		})
	})
	if err != nil {
		return err
	}

	e.log.Info("document forwarded",
		"document_code", code,
		"to", toEmail,
	)
	return nil
}

// RemoveRecipient deletes the user's own recipient entry. The document
// survives even when its last entry is removed.
func (e *Engine) RemoveRecipient(ctx context.Context, code, email string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	user, err := e.resolver.Resolve(ctx, email)
	if err != nil {
		return err
	}

	return e.withRetry(ctx, func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var entry models.Recipient
			if err := entry.Get(tx, code, user.ID); err != nil {
				return err
			}
			if err := entry.Delete(tx); err != nil {
				return err
			}

			e.appendEvent(tx, code, user.ID,
				fmt.Sprintf("Recipient %s deleted from document %s", email, code))
			return nil
		})
	})
}

// History returns the tracking events for a document code, oldest first.
// Fails with models.ErrNotFound when no events exist for the code.
func (e *Engine) History(ctx context.Context, code string) ([]models.TrackingEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	events, err := models.ListTrackingEventsByCode(e.db.WithContext(ctx), code)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("tracking history for %q: %w", code, models.ErrNotFound)
	}
	return events, nil
}

// appendEvent records an audit line inside tx. Losing an audit line is
// tolerable, losing document or recipient state is not, so failures are
// downgraded to a log line instead of failing the parent operation.
func (e *Engine) appendEvent(tx *gorm.DB, code string, userID uint, action string) {
	if err := models.AppendTrackingEvent(tx, code, userID, action); err != nil {
		e.log.Warn("tracking event append failed",
			"document_code", code,
			"action", action,
			"error", err,
		)
	}
}

func dedupe(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, email := range emails {
		if seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	return out
}

// withRetry runs op, retrying once when the failure looks transient
// (timeout, dropped connection). The surfaced error wraps
// models.ErrTransient so callers can report it as a 500.
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	attempts := 0
	err := backoff.Retry(
		func() error {
			attempts++
			err := op()
			if err == nil {
				return nil
			}
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 1),
			ctx,
		),
	)
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		if attempts > 1 {
			e.log.Error("storage operation failed after retry", "error", err)
		}
		return fmt.Errorf("%w: %v", models.ErrTransient, err)
	}
	return err
}

// IsTransient reports whether err looks like a storage failure that may
// succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
