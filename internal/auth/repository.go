package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/database"
)

// Repository handles users and refresh_tokens persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, password_hash, first_name, last_name, avatar_url,
	COALESCE(oauth_provider, ''), COALESCE(oauth_provider_id, ''), is_active,
	current_organization_id, deleted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.AvatarURL,
		&u.OAuthProvider, &u.OAuthProviderID, &u.IsActive,
		&u.CurrentOrganizationID, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &u, nil
}

// CreateUser inserts a user. Emails are unique case-insensitively.
func (r *Repository) CreateUser(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (email, password_hash, first_name, last_name, avatar_url,
			oauth_provider, oauth_provider_id, is_active)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		RETURNING id, created_at, updated_at`
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.AvatarURL,
		u.OAuthProvider, u.OAuthProviderID, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	return database.MapError(err)
}

// GetUserByID returns a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(database.Executor(ctx, r.pool).QueryRow(ctx, q, id))
}

// GetUserByEmail returns a user by email, ignoring case.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(database.Executor(ctx, r.pool).QueryRow(ctx, q, email))
}

// GetUserByOAuth returns the user linked to an OAuth identity.
func (r *Repository) GetUserByOAuth(ctx context.Context, provider, providerID string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE oauth_provider = $1 AND oauth_provider_id = $2`
	return scanUser(database.Executor(ctx, r.pool).QueryRow(ctx, q, provider, providerID))
}

// UpdateUserProfile writes names, avatar and OAuth link.
func (r *Repository) UpdateUserProfile(ctx context.Context, u *models.User) error {
	const q = `UPDATE users SET first_name = $2, last_name = $3, avatar_url = $4,
			oauth_provider = NULLIF($5, ''), oauth_provider_id = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q,
		u.ID, u.FirstName, u.LastName, u.AvatarURL, u.OAuthProvider, u.OAuthProviderID,
	).Scan(&u.UpdatedAt)
	return database.MapError(err)
}

// UpdateUserPassword sets a new password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id uuid.UUID, hash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, q, id, hash)
}

// SetCurrentOrganization sets or clears the user's selected organization.
func (r *Repository) SetCurrentOrganization(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) error {
	const q = `UPDATE users SET current_organization_id = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, q, userID, orgID)
}

const refreshColumns = `id, user_id, token_hash, remember_me, revoked, replaced_by, expires_at, created_at`

// CreateRefreshToken inserts a refresh token row.
func (r *Repository) CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	const q = `INSERT INTO refresh_tokens (user_id, token_hash, remember_me, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, t.UserID, t.TokenHash, t.RememberMe, t.ExpiresAt).
		Scan(&t.ID, &t.CreatedAt)
	return database.MapError(err)
}

// GetRefreshTokenByHash returns the row for a token hash.
func (r *Repository) GetRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	q := `SELECT ` + refreshColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	var t models.RefreshToken
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, hash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.RememberMe, &t.Revoked, &t.ReplacedBy, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &t, nil
}

// RevokeRefreshToken revokes one token of the user.
func (r *Repository) RevokeRefreshToken(ctx context.Context, userID, id uuid.UUID) error {
	const q = `UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1 AND user_id = $2`
	return r.execOne(ctx, q, id, userID)
}

// RevokeUserRefreshTokens revokes every live token of the user.
func (r *Repository) RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID) (int64, error) {
	const q = `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`
	tag, err := database.Executor(ctx, r.pool).Exec(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReplaceRefreshToken revokes oldID and inserts next in one statement. It
// returns database.ErrNotFound when oldID is already revoked.
func (r *Repository) ReplaceRefreshToken(ctx context.Context, oldID uuid.UUID, next *models.RefreshToken) error {
	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	const q = `WITH old AS (
			UPDATE refresh_tokens SET revoked = TRUE, replaced_by = $2
			WHERE id = $1 AND revoked = FALSE
			RETURNING user_id
		)
		INSERT INTO refresh_tokens (id, user_id, token_hash, remember_me, expires_at)
		SELECT $2, old.user_id, $3, $4, $5 FROM old
		RETURNING created_at`
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, oldID, next.ID, next.TokenHash, next.RememberMe, next.ExpiresAt).
		Scan(&next.CreatedAt)
	return database.MapError(err)
}

// DeleteExpiredRefreshTokens removes rows that expired before the cutoff.
func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := database.Executor(ctx, r.pool).Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := database.Executor(ctx, r.pool).Exec(ctx, q, args...)
	if err != nil {
		return database.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}
