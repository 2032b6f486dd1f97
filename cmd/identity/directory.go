package identity

import (
	"context"
	"time"
)

// User is a predixa principal as seen by the session layer.
// OrgID is empty for principals outside any organization.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	OrgID     string
	CreatedAt time.Time
}

// HasOrg reports whether the principal belongs to an organization.
func (u User) HasOrg() bool { return u.OrgID != "" }

// UserAuth couples a user with its stored password hash. It never leaves the server.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a registration. Password is plain text and is hashed by the directory.
type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Role     Role
	OrgID    string
	Now      time.Time
}

// Directory is the user-store boundary consumed by the session service.
//
// Lookups return ErrNotFound (possibly wrapped) when no principal matches.
// CreateUser returns a ConflictError{Field: "email"} when the normalized email exists.
type Directory interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)
}
