package securetoken

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/database"
)

const tokenColumns = `id, purpose, token_hash, user_id, organization_id, role_id, email, created_by,
	expires_at, used_at, rejected_at, created_at, updated_at`

const pendingClause = `used_at IS NULL AND rejected_at IS NULL`

// Repository handles secure_tokens persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a secure token repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanToken(row pgx.Row) (*models.SecureToken, error) {
	var t models.SecureToken
	err := row.Scan(&t.ID, &t.Purpose, &t.TokenHash, &t.UserID, &t.OrganizationID, &t.RoleID, &t.Email,
		&t.CreatedBy, &t.ExpiresAt, &t.UsedAt, &t.RejectedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &t, nil
}

// CreateSecureToken inserts t and fills its generated fields.
func (r *Repository) CreateSecureToken(ctx context.Context, t *models.SecureToken) error {
	const q = `INSERT INTO secure_tokens (purpose, token_hash, user_id, organization_id, role_id, email, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, t.Purpose, t.TokenHash, t.UserID, t.OrganizationID,
		t.RoleID, t.Email, t.CreatedBy, t.ExpiresAt).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return database.MapError(err)
}

// GetSecureTokenByHash looks a token up by purpose and hash.
func (r *Repository) GetSecureTokenByHash(ctx context.Context, purpose models.SecureTokenPurpose, hash string) (*models.SecureToken, error) {
	q := `SELECT ` + tokenColumns + ` FROM secure_tokens WHERE purpose = $1 AND token_hash = $2`
	return scanToken(database.Executor(ctx, r.pool).QueryRow(ctx, q, purpose, hash))
}

// GetSecureToken returns a token by ID.
func (r *Repository) GetSecureToken(ctx context.Context, id uuid.UUID) (*models.SecureToken, error) {
	q := `SELECT ` + tokenColumns + ` FROM secure_tokens WHERE id = $1`
	return scanToken(database.Executor(ctx, r.pool).QueryRow(ctx, q, id))
}

func (r *Repository) updatePending(ctx context.Context, q string, args ...any) error {
	tag, err := database.Executor(ctx, r.pool).Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ClaimSecureToken marks a pending token used.
func (r *Repository) ClaimSecureToken(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updatePending(ctx, `UPDATE secure_tokens SET used_at = $2, updated_at = $2
		WHERE id = $1 AND `+pendingClause, id, at)
}

// RejectSecureToken marks a pending token rejected.
func (r *Repository) RejectSecureToken(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updatePending(ctx, `UPDATE secure_tokens SET rejected_at = $2, updated_at = $2
		WHERE id = $1 AND `+pendingClause, id, at)
}

// RotateSecureToken replaces the hash and expiry of a pending token.
func (r *Repository) RotateSecureToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	return r.updatePending(ctx, `UPDATE secure_tokens SET token_hash = $2, expires_at = $3, updated_at = NOW()
		WHERE id = $1 AND `+pendingClause, id, hash, expiresAt)
}

// RejectPendingSecureTokens rejects every pending token of purpose for the user (and organization).
func (r *Repository) RejectPendingSecureTokens(ctx context.Context, purpose models.SecureTokenPurpose, userID uuid.UUID, orgID *uuid.UUID, at time.Time) error {
	const q = `UPDATE secure_tokens SET rejected_at = $4, updated_at = $4
		WHERE purpose = $1 AND user_id = $2 AND organization_id IS NOT DISTINCT FROM $3 AND ` + pendingClause
	_, err := database.Executor(ctx, r.pool).Exec(ctx, q, purpose, userID, orgID, at)
	return err
}

// FindPendingSecureToken finds a live pending token addressed to email in orgID.
func (r *Repository) FindPendingSecureToken(ctx context.Context, purpose models.SecureTokenPurpose, orgID uuid.UUID, email string, now time.Time) (*models.SecureToken, error) {
	q := `SELECT ` + tokenColumns + ` FROM secure_tokens
		WHERE purpose = $1 AND organization_id = $2 AND lower(email) = lower($3) AND expires_at > $4 AND ` + pendingClause + `
		ORDER BY created_at DESC LIMIT 1`
	return scanToken(database.Executor(ctx, r.pool).QueryRow(ctx, q, purpose, orgID, email, now))
}

// ListPendingSecureTokens lists live pending tokens in orgID, newest first.
func (r *Repository) ListPendingSecureTokens(ctx context.Context, purpose models.SecureTokenPurpose, orgID uuid.UUID, now time.Time) ([]models.SecureToken, error) {
	q := `SELECT ` + tokenColumns + ` FROM secure_tokens
		WHERE purpose = $1 AND organization_id = $2 AND expires_at > $3 AND ` + pendingClause + `
		ORDER BY created_at DESC`
	rows, err := database.Executor(ctx, r.pool).Query(ctx, q, purpose, orgID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.SecureToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// DeleteExpiredSecureTokens removes tokens that expired before the cutoff.
func (r *Repository) DeleteExpiredSecureTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := database.Executor(ctx, r.pool).Exec(ctx, `DELETE FROM secure_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
