package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant.
type Organization struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	CreatedBy uuid.UUID  `json:"created_by"`
	IsActive  bool       `json:"is_active"`
	DeletedAt *time.Time `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Available reports whether the organization can be entered.
func (o *Organization) Available() bool {
	return o.IsActive && o.DeletedAt == nil
}

// MembershipStatus is the lifecycle state of a membership.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipSuspended MembershipStatus = "suspended"
	MembershipInvited   MembershipStatus = "invited"
)

// Valid reports whether s is a known status.
func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipActive, MembershipSuspended, MembershipInvited:
		return true
	}
	return false
}

// Membership links a user to an organization with exactly one role.
type Membership struct {
	UserID         uuid.UUID        `json:"user_id"`
	OrganizationID uuid.UUID        `json:"organization_id"`
	RoleID         uuid.UUID        `json:"role_id"`
	Status         MembershipStatus `json:"status"`
	JoinedAt       time.Time        `json:"joined_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Member is a membership joined with user and role details.
type Member struct {
	UserID    uuid.UUID        `json:"user_id"`
	Email     string           `json:"email"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	RoleID    uuid.UUID        `json:"role_id"`
	RoleName  string           `json:"role_name"`
	RoleSlug  string           `json:"role_slug"`
	Status    MembershipStatus `json:"status"`
	JoinedAt  time.Time        `json:"joined_at"`
}

// UserOrganization is one entry of a user's organization list.
type UserOrganization struct {
	OrganizationID   uuid.UUID        `json:"organization_id"`
	OrganizationName string           `json:"organization_name"`
	OrganizationSlug string           `json:"organization_slug"`
	RoleID           uuid.UUID        `json:"role_id"`
	RoleName         string           `json:"role_name"`
	RoleSlug         string           `json:"role_slug"`
	Status           MembershipStatus `json:"status"`
	JoinedAt         time.Time        `json:"joined_at"`
}
