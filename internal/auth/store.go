package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/models"
)

// UserStore persists users. Implementations return database.ErrNotFound and
// database.ErrConflict.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByOAuth(ctx context.Context, provider, providerID string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, u *models.User) error
	UpdateUserPassword(ctx context.Context, id uuid.UUID, hash string) error
	SetCurrentOrganization(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) error
}

// RefreshTokenStore persists refresh token rows.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// RevokeRefreshToken revokes one of the user's tokens.
	RevokeRefreshToken(ctx context.Context, userID, id uuid.UUID) error
	RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID) (int64, error)
	// ReplaceRefreshToken revokes oldID, points it at next and inserts next.
	// It returns database.ErrNotFound if oldID was already revoked.
	ReplaceRefreshToken(ctx context.Context, oldID uuid.UUID, next *models.RefreshToken) error
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}
