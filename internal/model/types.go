package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the authorization tag stored on an identity. It is not enforced here.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// PhoneCountry is the dialing region of an identity's phone number.
type PhoneCountry string

const (
	PhoneCountryAU PhoneCountry = "au"
	PhoneCountryPH PhoneCountry = "ph"
)

// Valid reports whether c is a supported country.
func (c PhoneCountry) Valid() bool {
	return c == PhoneCountryAU || c == PhoneCountryPH
}

// Identity represents a registered user
type Identity struct {
	ID           uuid.UUID
	Email        string
	FirstName    string
	LastName     string
	PhoneCountry *PhoneCountry
	PhoneNumber  *string
	PasswordHash string
	IsActive     bool
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public returns the identity without its credential hash.
func (i Identity) Public() IdentityView {
	return IdentityView{
		ID:           i.ID,
		Email:        i.Email,
		FirstName:    i.FirstName,
		LastName:     i.LastName,
		PhoneCountry: i.PhoneCountry,
		PhoneNumber:  i.PhoneNumber,
		IsActive:     i.IsActive,
		Role:         i.Role,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

// IdentityView is the identity as exposed to callers
type IdentityView struct {
	ID           uuid.UUID     `json:"id"`
	Email        string        `json:"email"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	PhoneCountry *PhoneCountry `json:"phone_country,omitempty"`
	PhoneNumber  *string       `json:"phone_number,omitempty"`
	IsActive     bool          `json:"is_active"`
	Role         Role          `json:"role"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Session is an authentication session. Only the SHA-256 of the token is stored.
type Session struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// ActiveAt reports whether the session is still valid at t.
func (s Session) ActiveAt(t time.Time) bool {
	return t.Before(s.ExpiresAt)
}

// SessionView is a session joined with its owner. Token is only set when the
// session has just been issued.
type SessionView struct {
	ID        uuid.UUID    `json:"id"`
	Token     string       `json:"token,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Identity  IdentityView `json:"user"`
}

// ResetToken is a single-use password reset authorization
type ResetToken struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Consumed   bool
}

// UsableAt reports whether the token can still be consumed at t.
func (r ResetToken) UsableAt(t time.Time) bool {
	return !r.Consumed && t.Before(r.ExpiresAt)
}
