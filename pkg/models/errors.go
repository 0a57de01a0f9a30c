package models

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Typed errors raised by the entity stores. The routing engine translates
// these to the caller without reinterpretation.
var (
	// ErrNotFound indicates the requested document, user, recipient entry or
	// reply does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateCode indicates a document with the same code already exists.
	ErrDuplicateCode = errors.New("document code already exists")

	// ErrDuplicateRecipient indicates the (document code, user) pair already
	// has a recipient entry.
	ErrDuplicateRecipient = errors.New("recipient already exists for document")

	// ErrInvalidTransition indicates a recipient status change that the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTransient indicates a storage failure that may succeed on retry
	// (timeout, dropped connection).
	ErrTransient = errors.New("transient storage error")
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const pgUniqueViolation = "23505"

// IsDuplicateKey reports whether err is a unique-constraint violation from
// any of the supported drivers. The uniqueness constraints on documents.code
// and (recipients.document_code, recipients.user_id) are the synchronization
// point for concurrent submissions and forwards, so callers translate this
// into ErrDuplicateCode or ErrDuplicateRecipient.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return true
	}
	// SQLite driver without error translation enabled.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
