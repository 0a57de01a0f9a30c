package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// User is an organizational user that can send and receive documents.
// Authentication and profile management live in the identity subsystem; the
// routing core only reads users and, on the submission path, creates minimal
// sender records inline.
type User struct {
	ID        uint      `gorm:"primaryKey;column:user_id" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	FirstName string `gorm:"not null" json:"firstName"`
	LastName  string `json:"lastName"`

	// Email is the external identifier every operation addresses users by.
	Email string `gorm:"uniqueIndex;not null" json:"email"`

	Username string `json:"username"`
	Password string `json:"-"`
	Role     string `gorm:"not null;default:'User'" json:"role"`
}

// TableName specifies the table name.
func (User) TableName() string {
	return "users"
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", u.FirstName, u.LastName))
}

// Create creates a new user in the database.
func (u *User) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(u,
		validation.Field(&u.Email, validation.Required),
		validation.Field(&u.FirstName, validation.Required),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Create(&u).Error
}

// Get retrieves a user by ID.
func (u *User) Get(db *gorm.DB, id uint) error {
	if err := validation.Validate(id, validation.Required); err != nil {
		return err
	}

	err := db.First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return err
}

// GetByEmail retrieves a user by email address.
func (u *User) GetByEmail(db *gorm.DB, email string) error {
	if err := validation.Validate(email, validation.Required); err != nil {
		return err
	}

	err := db.Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("user %q: %w", email, ErrNotFound)
	}
	return err
}

// FirstOrCreate retrieves the user with the receiver's email, creating it
// with the receiver's fields when absent.
func (u *User) FirstOrCreate(db *gorm.DB) error {
	if err := validation.ValidateStruct(u,
		validation.Field(&u.Email, validation.Required),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.
		Where(User{Email: u.Email}).
		FirstOrCreate(&u).
		Error
}
