// Package securetoken issues and consumes hashed, expiring, single-use tokens
// for password reset, invitation and organization deletion workflows.
package securetoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/apperr"
	"github.com/teamspace/backend/pkg/database"
	"github.com/teamspace/backend/pkg/tokens"
)

var (
	ErrNotFound  = apperr.NotFound("invalid or expired token")
	ErrExpired   = apperr.BadRequest("token has expired")
	ErrUsed      = apperr.BadRequest("token has already been used")
	ErrProcessed = apperr.Conflict("token has already been processed")
)

// Store persists secure tokens. Conditional updates return database.ErrNotFound
// when the token is no longer pending.
type Store interface {
	CreateSecureToken(ctx context.Context, t *models.SecureToken) error
	GetSecureTokenByHash(ctx context.Context, purpose models.SecureTokenPurpose, hash string) (*models.SecureToken, error)
	GetSecureToken(ctx context.Context, id uuid.UUID) (*models.SecureToken, error)
	ClaimSecureToken(ctx context.Context, id uuid.UUID, at time.Time) error
	RejectSecureToken(ctx context.Context, id uuid.UUID, at time.Time) error
	RotateSecureToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error
	RejectPendingSecureTokens(ctx context.Context, purpose models.SecureTokenPurpose, userID uuid.UUID, orgID *uuid.UUID, at time.Time) error
	FindPendingSecureToken(ctx context.Context, purpose models.SecureTokenPurpose, orgID uuid.UUID, email string, now time.Time) (*models.SecureToken, error)
	ListPendingSecureTokens(ctx context.Context, purpose models.SecureTokenPurpose, orgID uuid.UUID, now time.Time) ([]models.SecureToken, error)
	DeleteExpiredSecureTokens(ctx context.Context, before time.Time) (int64, error)
}

// Policy configures one token purpose.
type Policy struct {
	Purpose models.SecureTokenPurpose
	TTL     time.Duration
	// SingleOutstanding rejects earlier pending tokens of the same subject on issue.
	SingleOutstanding bool
}

var (
	PasswordReset        = Policy{Purpose: models.PurposePasswordReset, TTL: time.Hour, SingleOutstanding: true}
	Invitation           = Policy{Purpose: models.PurposeInvitation, TTL: 7 * 24 * time.Hour}
	OrganizationDeletion = Policy{Purpose: models.PurposeOrganizationDeletion, TTL: 24 * time.Hour, SingleOutstanding: true}
)

// Subject binds a token to the entities it acts on.
type Subject struct {
	UserID         *uuid.UUID
	OrganizationID *uuid.UUID
	RoleID         *uuid.UUID
	Email          string
	CreatedBy      *uuid.UUID
}

// Manager implements the token lifecycle.
type Manager struct {
	store Store
	tx    database.TxRunner
	now   func() time.Time
}

// NewManager creates a token manager.
func NewManager(store Store, tx database.TxRunner) *Manager {
	return &Manager{store: store, tx: tx, now: time.Now}
}

// WithClock returns a copy of m that reads time from now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}

// Issue creates a token and returns the raw value, which is never stored.
func (m *Manager) Issue(ctx context.Context, p Policy, s Subject) (string, *models.SecureToken, error) {
	raw, err := tokens.NewOpaque()
	if err != nil {
		return "", nil, apperr.Internal("generate token", err)
	}
	now := m.now()
	t := &models.SecureToken{
		Purpose:        p.Purpose,
		TokenHash:      tokens.Hash(raw),
		UserID:         s.UserID,
		OrganizationID: s.OrganizationID,
		RoleID:         s.RoleID,
		Email:          s.Email,
		CreatedBy:      s.CreatedBy,
		ExpiresAt:      now.Add(p.TTL),
	}
	err = m.tx.RunInTx(ctx, func(ctx context.Context) error {
		if p.SingleOutstanding && s.UserID != nil {
			if err := m.store.RejectPendingSecureTokens(ctx, p.Purpose, *s.UserID, s.OrganizationID, now); err != nil {
				return fmt.Errorf("reject outstanding tokens: %w", err)
			}
		}
		return m.store.CreateSecureToken(ctx, t)
	})
	if err != nil {
		return "", nil, apperr.Internal("store token", err)
	}
	return raw, t, nil
}

// Inspect returns the pending, unexpired token for raw.
func (m *Manager) Inspect(ctx context.Context, purpose models.SecureTokenPurpose, raw string) (*models.SecureToken, error) {
	if raw == "" {
		return nil, ErrNotFound
	}
	t, err := m.store.GetSecureTokenByHash(ctx, purpose, tokens.Hash(raw))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Internal("load token", err)
	}
	if !t.Pending() {
		return nil, ErrUsed
	}
	if !m.now().Before(t.ExpiresAt) {
		return nil, ErrExpired
	}
	return t, nil
}

// Consume claims the token and runs effect in the same transaction. If effect
// fails the claim is rolled back. Of two concurrent consumers only one can claim.
func (m *Manager) Consume(ctx context.Context, purpose models.SecureTokenPurpose, raw string, effect func(ctx context.Context, t *models.SecureToken) error) (*models.SecureToken, error) {
	var claimed *models.SecureToken
	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		t, err := m.Inspect(ctx, purpose, raw)
		if err != nil {
			return err
		}
		now := m.now()
		if err := m.store.ClaimSecureToken(ctx, t.ID, now); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrUsed
			}
			return apperr.Internal("claim token", err)
		}
		t.UsedAt = &now
		if effect != nil {
			if err := effect(ctx, t); err != nil {
				return err
			}
		}
		claimed = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Get loads a token by ID.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*models.SecureToken, error) {
	t, err := m.store.GetSecureToken(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Internal("load token", err)
	}
	return t, nil
}

// Rotate replaces the secret and expiry of a pending token.
func (m *Manager) Rotate(ctx context.Context, p Policy, id uuid.UUID) (string, *models.SecureToken, error) {
	t, err := m.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if t.Purpose != p.Purpose {
		return "", nil, ErrNotFound
	}
	if !t.Pending() {
		return "", nil, ErrProcessed
	}
	raw, err := tokens.NewOpaque()
	if err != nil {
		return "", nil, apperr.Internal("generate token", err)
	}
	expiresAt := m.now().Add(p.TTL)
	if err := m.store.RotateSecureToken(ctx, id, tokens.Hash(raw), expiresAt); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", nil, ErrProcessed
		}
		return "", nil, apperr.Internal("rotate token", err)
	}
	t.TokenHash = tokens.Hash(raw)
	t.ExpiresAt = expiresAt
	return raw, t, nil
}

// Reject revokes a pending token.
func (m *Manager) Reject(ctx context.Context, id uuid.UUID) error {
	t, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if !t.Pending() {
		return ErrProcessed
	}
	if err := m.store.RejectSecureToken(ctx, id, m.now()); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrProcessed
		}
		return apperr.Internal("reject token", err)
	}
	return nil
}

// FindPending returns the live pending token for email in orgID, or nil.
func (m *Manager) FindPending(ctx context.Context, purpose models.SecureTokenPurpose, orgID uuid.UUID, email string) (*models.SecureToken, error) {
	t, err := m.store.FindPendingSecureToken(ctx, purpose, orgID, email, m.now())
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("find pending token", err)
	}
	return t, nil
}

// ListPending lists the live pending tokens of purpose in orgID.
func (m *Manager) ListPending(ctx context.Context, purpose models.SecureTokenPurpose, orgID uuid.UUID) ([]models.SecureToken, error) {
	list, err := m.store.ListPendingSecureTokens(ctx, purpose, orgID, m.now())
	if err != nil {
		return nil, apperr.Internal("list pending tokens", err)
	}
	if list == nil {
		list = []models.SecureToken{}
	}
	return list, nil
}
