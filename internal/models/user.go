package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a global identity. Users are deactivated or soft-deleted, never removed.
type User struct {
	ID                    uuid.UUID  `json:"id"`
	Email                 string     `json:"email"`
	PasswordHash          *string    `json:"-"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	AvatarURL             string     `json:"avatar_url,omitempty"`
	OAuthProvider         string     `json:"oauth_provider,omitempty"`
	OAuthProviderID       string     `json:"-"`
	IsActive              bool       `json:"is_active"`
	CurrentOrganizationID *uuid.UUID `json:"current_organization_id,omitempty"`
	DeletedAt             *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// CanAuthenticate reports whether the account may start sessions.
func (u *User) CanAuthenticate() bool {
	return u.IsActive && u.DeletedAt == nil
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID                    uuid.UUID  `json:"id"`
	Email                 string     `json:"email"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	AvatarURL             string     `json:"avatar_url,omitempty"`
	HasPassword           bool       `json:"has_password"`
	OAuthProvider         string     `json:"oauth_provider,omitempty"`
	CurrentOrganizationID *uuid.UUID `json:"current_organization_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:                    u.ID,
		Email:                 u.Email,
		FirstName:             u.FirstName,
		LastName:              u.LastName,
		AvatarURL:             u.AvatarURL,
		HasPassword:           u.PasswordHash != nil,
		OAuthProvider:         u.OAuthProvider,
		CurrentOrganizationID: u.CurrentOrganizationID,
		CreatedAt:             u.CreatedAt,
	}
}
