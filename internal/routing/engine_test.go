package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/courier-forge/courier/internal/identity"
	"github.com/courier-forge/courier/pkg/models"
)

func setupTest(t *testing.T) (*gorm.DB, *Engine) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))

	return db, NewEngine(db, nil)
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	u := &models.User{
		FirstName: "Test",
		Email:     email,
		Username:  email,
	}
	require.NoError(t, u.Create(db))
	return u
}

func submitInput(code string, recipients ...string) SubmitInput {
	return SubmitInput{
		Code: code,
		Sender: identity.Profile{
			Name:  "Carol Sender",
			Email: "carol@example.com",
		},
		RecipientEmails: recipients,
		Subject:         "Budget approval",
		Description:     "Needs sign-off before Friday",
		Priority:        models.PriorityPrecedence,
		Classification:  models.ClassificationConfidential,
	}
}

func TestEngine_Submit(t *testing.T) {
	db, engine := setupTest(t)
	ctx := context.Background()

	createUser(t, db, "a@example.com")
	createUser(t, db, "b@example.com")

	t.Run("creates document, entries and audit line atomically", func(t *testing.T) {
		doc, err := engine.Submit(ctx, submitInput("DOC-001", "a@example.com", "b@example.com"))
		require.NoError(t, err)
		assert.NotZero(t, doc.ID)

		entries, err := models.ListRecipientsByDocument(db, "DOC-001")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		for _, entry := range entries {
			assert.Equal(t, models.StatusPending, entry.Status)
		}

		events, err := engine.History(ctx, "DOC-001")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "Document Created", events[0].Action)
	})

	t.Run("creates the sender on first submission", func(t *testing.T) {
		sender := &models.User{}
		require.NoError(t, sender.GetByEmail(db, "carol@example.com"))
		assert.Equal(t, "Carol", sender.FirstName)
		assert.Equal(t, "Sender", sender.LastName)
		assert.Equal(t, "User", sender.Role)
	})

	t.Run("duplicate code leaves no rows behind", func(t *testing.T) {
		_, err := engine.Submit(ctx, submitInput("DOC-001", "a@example.com"))
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrDuplicateCode)

		entries, err := models.ListRecipientsByDocument(db, "DOC-001")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("unknown recipient rejects the whole submission", func(t *testing.T) {
		_, err := engine.Submit(ctx, submitInput("DOC-002", "a@example.com", "ghost@example.com"))
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrNotFound)

		doc := &models.Document{}
		err = doc.GetByCode(db, "DOC-002")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("duplicate addressees collapse to one entry", func(t *testing.T) {
		_, err := engine.Submit(ctx, submitInput("DOC-003", "a@example.com", "a@example.com"))
		require.NoError(t, err)

		entries, err := models.ListRecipientsByDocument(db, "DOC-003")
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		in := submitInput("DOC-004", "a@example.com")
		in.Priority = "Critical"
		_, err := engine.Submit(ctx, in)
		assert.Error(t, err)

		in = submitInput("DOC-004", "not-an-email")
		_, err = engine.Submit(ctx, in)
		assert.Error(t, err)
	})
}

func TestEngine_MarkViewed(t *testing.T) {
	db, engine := setupTest(t)
	ctx := context.Background()

	a := createUser(t, db, "a@example.com")
	_, err := engine.Submit(ctx, submitInput("DOC-001", "a@example.com"))
	require.NoError(t, err)

	t.Run("first view transitions to Received", func(t *testing.T) {
		require.NoError(t, engine.MarkViewed(ctx, "DOC-001", "a@example.com"))

		entry := &models.Recipient{}
		require.NoError(t, entry.Get(db, "DOC-001", a.ID))
		assert.Equal(t, models.StatusReceived, entry.Status)

		events, err := engine.History(ctx, "DOC-001")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "Status updated to Received by a@example.com", events[1].Action)
	})

	t.Run("repeat view is idempotent and appends no event", func(t *testing.T) {
		require.NoError(t, engine.MarkViewed(ctx, "DOC-001", "a@example.com"))

		events, err := engine.History(ctx, "DOC-001")
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("unknown viewer fails", func(t *testing.T) {
		err := engine.MarkViewed(ctx, "DOC-001", "ghost@example.com")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("viewer without an entry fails", func(t *testing.T) {
		createUser(t, db, "outsider@example.com")
		err := engine.MarkViewed(ctx, "DOC-001", "outsider@example.com")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestEngine_SetStatus(t *testing.T) {
	db, engine := setupTest(t)
	ctx := context.Background()

	a := createUser(t, db, "a@example.com")
	_, err := engine.Submit(ctx, submitInput("DOC-001", "a@example.com"))
	require.NoError(t, err)

	t.Run("archiving a Pending entry fails", func(t *testing.T) {
		err := engine.Archive(ctx, "DOC-001", "a@example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("received then archived", func(t *testing.T) {
		require.NoError(t, engine.MarkViewed(ctx, "DOC-001", "a@example.com"))
		require.NoError(t, engine.Archive(ctx, "DOC-001", "a@example.com"))

		entry := &models.Recipient{}
		require.NoError(t, entry.Get(db, "DOC-001", a.ID))
		assert.Equal(t, models.StatusArchived, entry.Status)
	})

	t.Run("same-status write appends no event", func(t *testing.T) {
		before, err := engine.History(ctx, "DOC-001")
		require.NoError(t, err)

		require.NoError(t, engine.SetStatus(ctx, "DOC-001", "a@example.com", models.StatusArchived))

		after, err := engine.History(ctx, "DOC-001")
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})

	t.Run("unknown status fails fast", func(t *testing.T) {
		err := engine.SetStatus(ctx, "DOC-001", "a@example.com", "Shredded")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("Ended is terminal", func(t *testing.T) {
		require.NoError(t, engine.SetStatus(ctx, "DOC-001", "a@example.com", models.StatusEnded))

		err := engine.SetStatus(ctx, "DOC-001", "a@example.com", models.StatusReceived)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})
}

func TestEngine_Forward(t *testing.T) {
	db, engine := setupTest(t)
	ctx := context.Background()

	a := createUser(t, db, "a@example.com")
	c := createUser(t, db, "c@example.com")
	_, err := engine.Submit(ctx, submitInput("DOC-001", "a@example.com"))
	require.NoError(t, err)

	t.Run("adds a Pending entry for the target", func(t *testing.T) {
		require.NoError(t, engine.Forward(ctx, "DOC-001", "a@example.com", "c@example.com"))

		entry := &models.Recipient{}
		require.NoError(t, entry.Get(db, "DOC-001", c.ID))
		assert.Equal(t, models.StatusPending, entry.Status)

		events, err := engine.History(ctx, "DOC-001")
		require.NoError(t, err)
		last := events[len(events)-1]
		assert.Equal(t, `Document forwarded to "c@example.com"`, last.Action)
		assert.Equal(t, a.ID, last.UserID)
	})

	t.Run("existing entries are untouched", func(t *testing.T) {
		entry := &models.Recipient{}
		require.NoError(t, entry.Get(db, "DOC-001", a.ID))
		assert.Equal(t, models.StatusPending, entry.Status)
	})

	t.Run("forwarding to an existing holder fails", func(t *testing.T) {
		err := engine.Forward(ctx, "DOC-001", "a@example.com", "c@example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrDuplicateRecipient)
	})

	t.Run("without a forwarding user the audit line names the target", func(t *testing.T) {
		d := createUser(t, db, "d@example.com")
		require.NoError(t, engine.Forward(ctx, "DOC-001", "", "d@example.com"))

		events, err := engine.History(ctx, "DOC-001")
		require.NoError(t, err)
		last := events[len(events)-1]
		assert.Equal(t, d.ID, last.UserID)
	})

	t.Run("unknown document fails", func(t *testing.T) {
		err := engine.Forward(ctx, "NOPE", "a@example.com", "c@example.com")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("unknown target fails", func(t *testing.T) {
		err := engine.Forward(ctx, "DOC-001", "a@example.com", "ghost@example.com")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestEngine_RemoveRecipient(t *testing.T) {
	db, engine := setupTest(t)
	ctx := context.Background()

	a := createUser(t, db, "a@example.com")
	_, err := engine.Submit(ctx, submitInput("DOC-001", "a@example.com"))
	require.NoError(t, err)

	t.Run("removes the entry and keeps the document", func(t *testing.T) {
		require.NoError(t, engine.RemoveRecipient(ctx, "DOC-001", "a@example.com"))

		entry := &models.Recipient{}
		err := entry.Get(db, "DOC-001", a.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		doc := &models.Document{}
		require.NoError(t, doc.GetByCode(db, "DOC-001"))
	})

	t.Run("removing twice fails", func(t *testing.T) {
		err := engine.RemoveRecipient(ctx, "DOC-001", "a@example.com")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestEngine_History(t *testing.T) {
	db, engine := setupTest(t)
	ctx := context.Background()

	createUser(t, db, "a@example.com")
	createUser(t, db, "b@example.com")
	createUser(t, db, "c@example.com")

	// Full lifecycle: submit to two, view, forward, then count the trail.
	_, err := engine.Submit(ctx, submitInput("DOC-001", "a@example.com", "b@example.com"))
	require.NoError(t, err)
	require.NoError(t, engine.MarkViewed(ctx, "DOC-001", "a@example.com"))
	require.NoError(t, engine.Forward(ctx, "DOC-001", "a@example.com", "c@example.com"))
	require.NoError(t, engine.MarkViewed(ctx, "DOC-001", "c@example.com"))

	t.Run("returns the full trail in order", func(t *testing.T) {
		events, err := engine.History(ctx, "DOC-001")
		require.NoError(t, err)
		require.Len(t, events, 4)
		assert.Equal(t, "Document Created", events[0].Action)
		assert.Equal(t, "Status updated to Received by a@example.com", events[1].Action)
		assert.Equal(t, `Document forwarded to "c@example.com"`, events[2].Action)
		assert.Equal(t, "Status updated to Received by c@example.com", events[3].Action)
	})

	t.Run("B's entry is untouched by A's actions", func(t *testing.T) {
		entries, err := models.ListRecipientsByDocument(db, "DOC-001")
		require.NoError(t, err)
		require.Len(t, entries, 3)

		byEmail := map[string]string{}
		for _, entry := range entries {
			byEmail[entry.User.Email] = entry.Status
		}
		assert.Equal(t, models.StatusReceived, byEmail["a@example.com"])
		assert.Equal(t, models.StatusPending, byEmail["b@example.com"])
		assert.Equal(t, models.StatusReceived, byEmail["c@example.com"])
	})

	t.Run("unknown code fails with ErrNotFound", func(t *testing.T) {
		_, err := engine.History(ctx, "NOPE")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("validation error")))
	assert.False(t, IsTransient(models.ErrNotFound))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, IsTransient(fmt.Errorf("write: %w", errors.New("broken pipe"))))
}
