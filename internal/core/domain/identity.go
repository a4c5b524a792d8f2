package domain

import "time"

// User mirrors the persisted representation in the users table.
type User struct {
	ID           string
	Username     string
	Email        string
	Name         *string
	PhoneNumber  *string
	Address      *string
	PasswordHash string
	IsActive     bool
	LastLogin    *time.Time
	DateJoined   time.Time
}

// DisplayName returns the real name when present and the username otherwise.
func (u User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Username
}

// UserWithRoles decorates a user with its assigned roles for administrative listings.
type UserWithRoles struct {
	User
	Roles []Role
}

// PasswordContext supplies user attributes that a password must not resemble.
type PasswordContext struct {
	Username string
	Email    string
	Phone    *string
}

// EmailCode is a one-time login code cached per email address.
type EmailCode struct {
	Email     string
	Code      string
	CreatedAt time.Time
}

// Page describes an offset window over a listing.
type Page struct {
	Number int
	Size   int
}

// Offset returns the zero-based row offset for the page.
func (p Page) Offset() uint64 {
	if p.Number <= 1 || p.Size <= 0 {
		return 0
	}
	return uint64((p.Number - 1) * p.Size)
}

// PageResult wraps a listing window with the total row count.
type PageResult[T any] struct {
	Count   int
	Results []T
}
