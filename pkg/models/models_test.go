package models

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTest returns a migrated in-memory database. Each test gets its own
// database; the single-connection pool keeps SQLite's memory store alive for
// the test's duration.
func setupTest(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(ModelsToAutoMigrate()...))

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email, username string) *User {
	t.Helper()

	u := &User{
		FirstName: "Test",
		LastName:  "User",
		Email:     email,
		Username:  username,
	}
	require.NoError(t, u.Create(db))
	return u
}

func createTestDocument(t *testing.T, db *gorm.DB, code string, senderID uint) *Document {
	t.Helper()

	d := &Document{
		Code:           code,
		SenderID:       senderID,
		Subject:        "Quarterly report",
		Description:    "Please review and archive",
		Priority:       PriorityOscar,
		Classification: ClassificationUnclassified,
	}
	require.NoError(t, d.Create(db))
	return d
}
