// Package identity maps external email addresses to internal user records.
// Every routing operation addresses users by email and translates to
// internal keys here before any write.
package identity

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/courier-forge/courier/pkg/models"
)

// Resolver looks up users by email.
type Resolver struct {
	db  *gorm.DB
	log hclog.Logger
}

// NewResolver returns a Resolver backed by db.
func NewResolver(db *gorm.DB, log hclog.Logger) *Resolver {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Resolver{
		db:  db,
		log: log.Named("identity"),
	}
}

// Resolve returns the user owning email, or models.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := user.GetByEmail(r.db.WithContext(ctx), email); err != nil {
		return nil, err
	}
	return &user, nil
}

// ResolveAll resolves every email, failing fast with the full list of
// unresolvable addresses. A submission with any unknown recipient is
// rejected whole; partial recipient lists are not accepted.
func (r *Resolver) ResolveAll(ctx context.Context, emails []string) ([]models.User, error) {
	var result *multierror.Error
	users := make([]models.User, 0, len(emails))

	for _, email := range emails {
		user, err := r.Resolve(ctx, email)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		users = append(users, *user)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return users, nil
}

// Profile is the minimal sender identity carried on the submission path.
type Profile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Validate validates the profile fields.
func (p Profile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Email, validation.Required, is.Email),
	)
}

// ResolveOrCreate returns the user owning the profile's email, creating a
// minimal user record when none exists. Password handling is delegated to
// the identity subsystem; this layer stores what it was given.
func (r *Resolver) ResolveOrCreate(ctx context.Context, p Profile) (*models.User, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sender profile: %w", err)
	}

	firstName, lastName := splitName(p.Name)
	role := p.Role
	if role == "" {
		role = "User"
	}

	user := models.User{
		FirstName: firstName,
		LastName:  lastName,
		Email:     p.Email,
		Username:  p.Username,
		Password:  p.Password,
		Role:      role,
	}
	if err := user.FirstOrCreate(r.db.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("error resolving sender: %w", err)
	}

	r.log.Debug("resolved sender", "email", p.Email, "user_id", user.ID)
	return &user, nil
}

func splitName(name string) (first, last string) {
	parts := strings.SplitN(strings.TrimSpace(name), " ", 2)
	first = parts[0]
	if len(parts) > 1 {
		last = parts[1]
	}
	return first, last
}
