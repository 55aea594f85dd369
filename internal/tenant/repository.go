package tenant

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/database"
)

// Repository reads tenant data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tenant repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetMembership returns the membership of userID in orgID.
func (r *Repository) GetMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error) {
	const q = `SELECT user_id, organization_id, role_id, status, joined_at, updated_at
		FROM organization_members WHERE user_id = $1 AND organization_id = $2`
	var m models.Membership
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, userID, orgID).
		Scan(&m.UserID, &m.OrganizationID, &m.RoleID, &m.Status, &m.JoinedAt, &m.UpdatedAt)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &m, nil
}

// GetOrganization returns an organization by ID.
func (r *Repository) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	const q = `SELECT id, name, slug, created_by, is_active, deleted_at, created_at, updated_at
		FROM organizations WHERE id = $1`
	var o models.Organization
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, orgID).
		Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedBy, &o.IsActive, &o.DeletedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &o, nil
}

// GetRole returns a role by ID.
func (r *Repository) GetRole(ctx context.Context, roleID uuid.UUID) (*models.Role, error) {
	const q = `SELECT id, organization_id, name, slug, description, is_system_role, created_at, updated_at
		FROM roles WHERE id = $1`
	var role models.Role
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, roleID).
		Scan(&role.ID, &role.OrganizationID, &role.Name, &role.Slug, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &role, nil
}

// ListRolePermissionSlugs returns the permission slugs linked to roleID.
func (r *Repository) ListRolePermissionSlugs(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	const q = `SELECT p.slug FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1 ORDER BY p.slug`
	rows, err := database.Executor(ctx, r.pool).Query(ctx, q, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	slugs := []string{}
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// ListMemberPermissionSlugs joins the active membership to its role's permissions.
// A member whose role has no permissions yields one row with a NULL slug.
func (r *Repository) ListMemberPermissionSlugs(ctx context.Context, userID, orgID uuid.UUID) ([]string, error) {
	const q = `SELECT p.slug FROM organization_members m
		JOIN organizations o ON o.id = m.organization_id AND o.is_active AND o.deleted_at IS NULL
		LEFT JOIN role_permissions rp ON rp.role_id = m.role_id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE m.user_id = $1 AND m.organization_id = $2 AND m.status = 'active'`
	rows, err := database.Executor(ctx, r.pool).Query(ctx, q, userID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := false
	slugs := []string{}
	for rows.Next() {
		found = true
		var slug *string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		if slug != nil {
			slugs = append(slugs, *slug)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, database.ErrNotFound
	}
	return slugs, nil
}

// ListUserOrganizations returns the user's memberships in available organizations.
func (r *Repository) ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]models.UserOrganization, error) {
	const q = `SELECT o.id, o.name, o.slug, r.id, r.name, r.slug, m.status, m.joined_at
		FROM organization_members m
		JOIN organizations o ON o.id = m.organization_id
		JOIN roles r ON r.id = m.role_id
		WHERE m.user_id = $1 AND o.is_active AND o.deleted_at IS NULL
		ORDER BY o.name`
	rows, err := database.Executor(ctx, r.pool).Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.UserOrganization
	for rows.Next() {
		var uo models.UserOrganization
		if err := rows.Scan(&uo.OrganizationID, &uo.OrganizationName, &uo.OrganizationSlug,
			&uo.RoleID, &uo.RoleName, &uo.RoleSlug, &uo.Status, &uo.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, uo)
	}
	return list, rows.Err()
}
