package roles

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/database"
)

// Repository handles roles, permissions and role_permissions persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a roles repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, organization_id, name, slug, description, is_system_role, created_at, updated_at`

// CreateRole inserts a role.
func (r *Repository) CreateRole(ctx context.Context, role *models.Role) error {
	const q = `INSERT INTO roles (organization_id, name, slug, description, is_system_role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q,
		role.OrganizationID, role.Name, role.Slug, role.Description, role.IsSystemRole,
	).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	return database.MapError(err)
}

// GetRole returns a role by ID.
func (r *Repository) GetRole(ctx context.Context, roleID uuid.UUID) (*models.Role, error) {
	q := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	var role models.Role
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, roleID).
		Scan(&role.ID, &role.OrganizationID, &role.Name, &role.Slug, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &role, nil
}

// GetRoleBySlug returns the role with slug in orgID.
func (r *Repository) GetRoleBySlug(ctx context.Context, orgID uuid.UUID, slug string) (*models.Role, error) {
	q := `SELECT ` + roleColumns + ` FROM roles WHERE organization_id = $1 AND slug = $2`
	var role models.Role
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, orgID, slug).
		Scan(&role.ID, &role.OrganizationID, &role.Name, &role.Slug, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &role, nil
}

// ListRoles returns the roles of orgID with their permission slugs and member counts.
func (r *Repository) ListRoles(ctx context.Context, orgID uuid.UUID) ([]models.RoleDetail, error) {
	const q = `SELECT r.id, r.organization_id, r.name, r.slug, r.description, r.is_system_role, r.created_at, r.updated_at,
			COALESCE((SELECT array_agg(p.slug ORDER BY p.slug) FROM role_permissions rp
				JOIN permissions p ON p.id = rp.permission_id WHERE rp.role_id = r.id), '{}') AS permissions,
			(SELECT COUNT(*) FROM organization_members m WHERE m.role_id = r.id) AS member_count
		FROM roles r
		WHERE r.organization_id = $1
		ORDER BY r.name`
	rows, err := database.Executor(ctx, r.pool).Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RoleDetail
	for rows.Next() {
		var d models.RoleDetail
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.Name, &d.Slug, &d.Description, &d.IsSystemRole,
			&d.CreatedAt, &d.UpdatedAt, &d.Permissions, &d.MemberCount); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// UpdateRole writes name, slug and description.
func (r *Repository) UpdateRole(ctx context.Context, role *models.Role) error {
	const q = `UPDATE roles SET name = $2, slug = $3, description = $4, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	err := database.Executor(ctx, r.pool).QueryRow(ctx, q, role.ID, role.Name, role.Slug, role.Description).
		Scan(&role.UpdatedAt)
	return database.MapError(err)
}

// DeleteRole removes a role and its permission links.
func (r *Repository) DeleteRole(ctx context.Context, roleID uuid.UUID) error {
	db := database.Executor(ctx, r.pool)
	if _, err := db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// CountRoleMembers counts memberships of any status holding roleID.
func (r *Repository) CountRoleMembers(ctx context.Context, roleID uuid.UUID) (int, error) {
	var n int
	err := database.Executor(ctx, r.pool).
		QueryRow(ctx, `SELECT COUNT(*) FROM organization_members WHERE role_id = $1`, roleID).Scan(&n)
	return n, err
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

// SetRolePermissions replaces the role's permissions. Run it inside a transaction.
func (r *Repository) SetRolePermissions(ctx context.Context, roleID uuid.UUID, slugs []string) error {
	db := database.Executor(ctx, r.pool)
	if _, err := db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	const q = `INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions WHERE slug = ANY($2)`
	tag, err := db.Exec(ctx, q, roleID, slugs)
	if err != nil {
		return database.MapError(err)
	}
	if tag.RowsAffected() != int64(len(slugs)) {
		return database.ErrNotFound
	}
	return nil
}

// ListPermissions returns the permission catalog ordered by slug.
func (r *Repository) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	const q = `SELECT id, slug, name, category, description FROM permissions ORDER BY slug`
	rows, err := database.Executor(ctx, r.pool).Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Category, &p.Description); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// UpsertPermission inserts or refreshes a catalog entry by slug.
func (r *Repository) UpsertPermission(ctx context.Context, p *models.Permission) error {
	const q = `INSERT INTO permissions (slug, name, category, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category,
			description = EXCLUDED.description
		RETURNING id`
	return database.Executor(ctx, r.pool).QueryRow(ctx, q, p.Slug, p.Name, p.Category, p.Description).Scan(&p.ID)
}
