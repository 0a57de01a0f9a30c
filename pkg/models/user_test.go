package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_FullName(t *testing.T) {
	u := &User{FirstName: "Dana", LastName: "Whitfield"}
	assert.Equal(t, "Dana Whitfield", u.FullName())

	u = &User{FirstName: "Dana"}
	assert.Equal(t, "Dana", u.FullName())
}

func TestUser_GetByEmail(t *testing.T) {
	db := setupTest(t)
	created := createTestUser(t, db, "alice@example.com", "alice")

	t.Run("finds by email", func(t *testing.T) {
		u := &User{}
		require.NoError(t, u.GetByEmail(db, "alice@example.com"))
		assert.Equal(t, created.ID, u.ID)
	})

	t.Run("unknown email fails with ErrNotFound", func(t *testing.T) {
		u := &User{}
		err := u.GetByEmail(db, "nobody@example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUser_FirstOrCreate(t *testing.T) {
	db := setupTest(t)

	t.Run("creates when absent", func(t *testing.T) {
		u := &User{FirstName: "Bob", Email: "bob@example.com"}
		require.NoError(t, u.FirstOrCreate(db))
		assert.NotZero(t, u.ID)
	})

	t.Run("returns the existing row on repeat", func(t *testing.T) {
		first := &User{FirstName: "Bob", Email: "bob@example.com"}
		require.NoError(t, first.FirstOrCreate(db))

		again := &User{FirstName: "Robert", Email: "bob@example.com"}
		require.NoError(t, again.FirstOrCreate(db))
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "Bob", again.FirstName)
	})

	t.Run("requires an email", func(t *testing.T) {
		u := &User{FirstName: "Eve"}
		assert.Error(t, u.FirstOrCreate(db))
	})
}
