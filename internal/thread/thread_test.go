package thread

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/courier-forge/courier/pkg/models"
)

func setupTest(t *testing.T) (*gorm.DB, *Service) {
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

	return db, NewService(db, nil)
}

func seedConversation(t *testing.T, db *gorm.DB) (sender, receiver *models.User, doc *models.Document) {
	t.Helper()

	sender = &models.User{FirstName: "Sam", Email: "sam@example.com", Username: "sam"}
	require.NoError(t, sender.Create(db))
	receiver = &models.User{FirstName: "Rita", Email: "rita@example.com", Username: "rita"}
	require.NoError(t, receiver.Create(db))

	doc = &models.Document{
		Code:           "DOC-001",
		SenderID:       sender.ID,
		Subject:        "Site inspection",
		Priority:       models.PriorityZulo,
		Classification: models.ClassificationUnclassified,
	}
	require.NoError(t, doc.Create(db))
	return sender, receiver, doc
}

func TestService_Post(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()
	sender, receiver, doc := seedConversation(t, db)

	t.Run("stores the reply and appends an audit line", func(t *testing.T) {
		reply, err := svc.Post(ctx, PostInput{
			DocumentID: doc.ID,
			AuthorID:   sender.ID,
			ReceiverID: receiver.ID,
			Text:       "see attached notes",
		})
		require.NoError(t, err)
		assert.NotZero(t, reply.ID)
		assert.NotEmpty(t, reply.Code)
		assert.False(t, reply.Seen)

		events, err := models.ListTrackingEventsByCode(db, doc.Code)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Contains(t, events[0].Action, "see attached notes")
		assert.Contains(t, events[0].Action, sender.Email)
	})

	t.Run("each reply gets a distinct code", func(t *testing.T) {
		a, err := svc.Post(ctx, PostInput{
			DocumentID: doc.ID, AuthorID: sender.ID, ReceiverID: receiver.ID, Text: "one",
		})
		require.NoError(t, err)
		b, err := svc.Post(ctx, PostInput{
			DocumentID: doc.ID, AuthorID: sender.ID, ReceiverID: receiver.ID, Text: "two",
		})
		require.NoError(t, err)
		assert.NotEqual(t, a.Code, b.Code)
	})

	t.Run("unknown document fails", func(t *testing.T) {
		_, err := svc.Post(ctx, PostInput{
			DocumentID: 9999, AuthorID: sender.ID, ReceiverID: receiver.ID, Text: "lost",
		})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("unknown author fails", func(t *testing.T) {
		_, err := svc.Post(ctx, PostInput{
			DocumentID: doc.ID, AuthorID: 9999, ReceiverID: receiver.ID, Text: "lost",
		})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("rejects missing text", func(t *testing.T) {
		_, err := svc.Post(ctx, PostInput{
			DocumentID: doc.ID, AuthorID: sender.ID, ReceiverID: receiver.ID,
		})
		assert.Error(t, err)
	})
}

func TestService_SeenTracking(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()
	sender, receiver, doc := seedConversation(t, db)

	post := func(authorID, receiverID uint, text string) {
		t.Helper()
		_, err := svc.Post(ctx, PostInput{
			DocumentID: doc.ID, AuthorID: authorID, ReceiverID: receiverID, Text: text,
		})
		require.NoError(t, err)
	}

	post(sender.ID, receiver.ID, "first")
	post(sender.ID, receiver.ID, "second")
	post(receiver.ID, sender.ID, "a reply back")

	t.Run("counts before anyone opens the thread", func(t *testing.T) {
		count, err := svc.CountUnseenForReceiver(ctx, receiver.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)

		count, err = svc.CountUnseenExcludingUser(ctx, receiver.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})

	t.Run("opening the thread marks the counterpart's replies", func(t *testing.T) {
		affected, err := svc.MarkSeen(ctx, doc.ID, receiver.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 2, affected)

		count, err := svc.CountUnseenForReceiver(ctx, receiver.ID)
		require.NoError(t, err)
		assert.Zero(t, count)

		// The receiver's own reply to the sender is still unseen.
		count, err = svc.CountUnseenForReceiver(ctx, sender.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})

	t.Run("marking an unknown document is a zero-row no-op", func(t *testing.T) {
		affected, err := svc.MarkSeen(ctx, 9999, receiver.ID)
		require.NoError(t, err)
		assert.Zero(t, affected)
	})
}

func TestService_Listings(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()
	sender, receiver, doc := seedConversation(t, db)

	_, err := svc.Post(ctx, PostInput{
		DocumentID: doc.ID, AuthorID: sender.ID, ReceiverID: receiver.ID, Text: "hello",
	})
	require.NoError(t, err)

	t.Run("list all", func(t *testing.T) {
		listings, err := svc.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, listings, 1)
		assert.Equal(t, "Site inspection", listings[0].DocumentSubject)
		assert.Equal(t, "sam", listings[0].SenderName)
		assert.Equal(t, "rita", listings[0].ReceiverName)
	})

	t.Run("list by document", func(t *testing.T) {
		listings, err := svc.ListByDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Len(t, listings, 1)
	})

	t.Run("list by receiver", func(t *testing.T) {
		listings, err := svc.ListByReceiver(ctx, receiver.ID)
		require.NoError(t, err)
		assert.Len(t, listings, 1)

		listings, err = svc.ListByReceiver(ctx, sender.ID)
		require.NoError(t, err)
		assert.Empty(t, listings)
	})
}
