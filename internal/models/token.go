package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one login session. Only the hash of the bearer value is stored.
type RefreshToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	RememberMe bool
	Revoked    bool
	ReplacedBy *uuid.UUID
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// SecureTokenPurpose scopes a single-use token to one workflow.
type SecureTokenPurpose string

const (
	PurposePasswordReset        SecureTokenPurpose = "password_reset"
	PurposeInvitation           SecureTokenPurpose = "invitation"
	PurposeOrganizationDeletion SecureTokenPurpose = "organization_deletion"
)

// SecureToken is a hashed, expiring, single-use token bound to a subject.
type SecureToken struct {
	ID             uuid.UUID          `json:"id"`
	Purpose        SecureTokenPurpose `json:"purpose"`
	TokenHash      string             `json:"-"`
	UserID         *uuid.UUID         `json:"user_id,omitempty"`
	OrganizationID *uuid.UUID         `json:"organization_id,omitempty"`
	RoleID         *uuid.UUID         `json:"role_id,omitempty"`
	Email          string             `json:"email,omitempty"`
	CreatedBy      *uuid.UUID         `json:"created_by,omitempty"`
	ExpiresAt      time.Time          `json:"expires_at"`
	UsedAt         *time.Time         `json:"used_at,omitempty"`
	RejectedAt     *time.Time         `json:"rejected_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Pending reports whether the token was neither used nor rejected.
func (t *SecureToken) Pending() bool {
	return t.UsedAt == nil && t.RejectedAt == nil
}

// Email types sent through the notification queue.
const (
	EmailTypeInvitation           = "invitation"
	EmailTypePasswordReset        = "password_reset"
	EmailTypePasswordChanged      = "password_changed"
	EmailTypeDeletionConfirmation = "organization_deletion"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusSent   = "sent"
	EmailLogStatusFailed = "failed"
)

// EmailLog records one delivery attempt.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	JobID          string     `json:"job_id"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	Attempt        int        `json:"attempt"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
