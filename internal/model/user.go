// Package model defines domain entities for the application.
package model

import (
	"strings"
	"time"
)

// Role is a user's authorization role.
type Role string

const (
	RoleProvider Role = "provider"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

// ValidRoles contains all assignable roles.
var ValidRoles = []Role{RoleProvider, RoleReviewer, RoleAdmin}

// Valid reports whether r is an assignable role.
func (r Role) Valid() bool {
	switch r {
	case RoleProvider, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

// AuthProvider identifies how a user signs in.
type AuthProvider string

const (
	AuthProviderLocal  AuthProvider = "local"
	AuthProviderGoogle AuthProvider = "google"
)

// User is an account that provides, reviews or administers recordings.
type User struct {
	ID             int64        `json:"id"`
	Email          string       `json:"email"`
	PasswordHash   *string      `json:"-"`
	FirstName      string       `json:"first_name"`
	LastName       string       `json:"last_name"`
	Role           Role         `json:"role"`
	Gender         string       `json:"gender,omitempty"`
	AgeGroup       string       `json:"age_group,omitempty"`
	GoogleID       *string      `json:"-"`
	ProfilePicture string       `json:"profile_picture,omitempty"`
	AuthProvider   AuthProvider `json:"auth_provider"`
	CreatedAt      time.Time    `json:"created_at"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasDemographics reports whether gender and age group are both set.
func (u *User) HasDemographics() bool {
	return u.Gender != "" && u.AgeGroup != ""
}

// HasPassword reports whether the user can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	Name      string `json:"name"`
	TokenHash string `json:"-"`
}

// HasRole reports whether the principal holds any of the given roles.
func (p *Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// IsAdmin is shorthand for HasRole(RoleAdmin).
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// NewPrincipal builds a principal for u.
func NewPrincipal(u *User) *Principal {
	return &Principal{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		Name:   u.FullName(),
	}
}
