package organizations

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/tenant"
	"github.com/teamspace/backend/pkg/database"
)

// Repository handles organization and organization_members persistence.
// Membership and organization reads come from the tenant repository.
type Repository struct {
	*tenant.Repository
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Repository: tenant.NewRepository(pool), pool: pool}
}

// CreateOrganization inserts an organization.
func (r *Repository) CreateOrganization(ctx context.Context, org *models.Organization) error {
	const q = `INSERT INTO organizations (name, slug, created_by, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, org.Name, org.Slug, org.CreatedBy, org.IsActive).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	return database.MapError(err)
}

// CreateMembership adds a user to an organization.
func (r *Repository) CreateMembership(ctx context.Context, m *models.Membership) error {
	const q = `INSERT INTO organization_members (user_id, organization_id, role_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING joined_at, updated_at`
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, m.UserID, m.OrganizationID, m.RoleID, m.Status).
		Scan(&m.JoinedAt, &m.UpdatedAt)
	return database.MapError(err)
}

// UpdateMembershipRole changes a member's role.
func (r *Repository) UpdateMembershipRole(ctx context.Context, userID, orgID, roleID uuid.UUID) error {
	const q = `UPDATE organization_members SET role_id = $3, updated_at = NOW()
		WHERE user_id = $1 AND organization_id = $2`
	return r.execOne(ctx, q, userID, orgID, roleID)
}

// UpdateMembershipStatus changes a member's status.
func (r *Repository) UpdateMembershipStatus(ctx context.Context, userID, orgID uuid.UUID, status models.MembershipStatus) error {
	const q = `UPDATE organization_members SET status = $3, updated_at = NOW()
		WHERE user_id = $1 AND organization_id = $2`
	return r.execOne(ctx, q, userID, orgID, status)
}

// DeleteMembership removes a member.
func (r *Repository) DeleteMembership(ctx context.Context, userID, orgID uuid.UUID) error {
	const q = `DELETE FROM organization_members WHERE user_id = $1 AND organization_id = $2`
	return r.execOne(ctx, q, userID, orgID)
}

// ListMembers returns members with user and role details.
func (r *Repository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Member, error) {
	const q = `SELECT u.id, u.email, u.first_name, u.last_name, ro.id, ro.name, ro.slug, m.status, m.joined_at
		FROM organization_members m
		JOIN users u ON u.id = m.user_id
		JOIN roles ro ON ro.id = m.role_id
		WHERE m.organization_id = $1
		ORDER BY u.email`
	rows, err := database.Executor(ctx, r.pool).Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.FirstName, &m.LastName, &m.RoleID, &m.RoleName, &m.RoleSlug, &m.Status, &m.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// CountActiveMembersWithRole counts active members of orgID holding roleID.
func (r *Repository) CountActiveMembersWithRole(ctx context.Context, orgID, roleID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM organization_members
		WHERE organization_id = $1 AND role_id = $2 AND status = 'active'`
	var n int
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, orgID, roleID).Scan(&n)
	return n, err
}

// DeleteOrganizationCascade removes the organization and everything scoped to
// it. Run it inside a transaction.
func (r *Repository) DeleteOrganizationCascade(ctx context.Context, orgID uuid.UUID) error {
	db := database.Executor(ctx, r.pool)
	steps := []string{
		`UPDATE users SET current_organization_id = NULL, updated_at = NOW() WHERE current_organization_id = $1`,
		`DELETE FROM organization_members WHERE organization_id = $1`,
		`DELETE FROM secure_tokens WHERE organization_id = $1`,
		`DELETE FROM role_permissions WHERE role_id IN (SELECT id FROM roles WHERE organization_id = $1)`,
		`DELETE FROM roles WHERE organization_id = $1`,
	}
	for _, q := range steps {
		if _, err := db.Exec(ctx, q, orgID); err != nil {
			return err
		}
	}
	return r.execOne(ctx, `DELETE FROM organizations WHERE id = $1`, orgID)
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
