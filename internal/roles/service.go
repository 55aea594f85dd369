// Package roles manages the global permission catalog and organization roles.
package roles

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/apperr"
	"github.com/teamspace/backend/pkg/database"
	"github.com/teamspace/backend/pkg/utils"
)

var (
	ErrRoleNotFound      = apperr.NotFound("role not found")
	ErrSystemRole        = apperr.Forbidden("system roles cannot be changed")
	ErrRoleInUse         = apperr.Conflict("role is assigned to members")
	ErrRoleExists        = apperr.Conflict("a role with this name already exists")
	ErrNoPermissions     = apperr.BadRequest("at least one permission is required")
	ErrUnknownPermission = apperr.BadRequest("unknown permission")
	ErrInvalidRoleName   = apperr.BadRequest("role name must be 2–64 characters")
)

// Store persists roles and permissions.
type Store interface {
	CreateRole(ctx context.Context, r *models.Role) error
	GetRole(ctx context.Context, roleID uuid.UUID) (*models.Role, error)
	GetRoleBySlug(ctx context.Context, orgID uuid.UUID, slug string) (*models.Role, error)
	ListRoles(ctx context.Context, orgID uuid.UUID) ([]models.RoleDetail, error)
	UpdateRole(ctx context.Context, r *models.Role) error
	DeleteRole(ctx context.Context, roleID uuid.UUID) error
	CountRoleMembers(ctx context.Context, roleID uuid.UUID) (int, error)
	ListRolePermissionSlugs(ctx context.Context, roleID uuid.UUID) ([]string, error)
	// SetRolePermissions replaces the role's permission set. It returns
	// database.ErrNotFound when a slug is not in the catalog.
	SetRolePermissions(ctx context.Context, roleID uuid.UUID, slugs []string) error
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	UpsertPermission(ctx context.Context, p *models.Permission) error
}

// CreateInput is the input of Create.
type CreateInput struct {
	Name        string
	Description string
	Permissions []string
}

// UpdateInput is the input of Update. Nil fields are left unchanged.
type UpdateInput struct {
	Name        *string
	Description *string
}

// Service implements role management.
type Service struct {
	store  Store
	tx     database.TxRunner
	logger *zap.Logger
}

// NewService creates a roles service.
func NewService(store Store, tx database.TxRunner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, tx: tx, logger: logger}
}

// EnsurePermissions writes the built-in catalog. It is idempotent.
func (s *Service) EnsurePermissions(ctx context.Context) error {
	for _, p := range models.BuiltinPermissions {
		p := p
		if err := s.store.UpsertPermission(ctx, &p); err != nil {
			return apperr.Internal("ensure permission "+p.Slug, err)
		}
	}
	s.logger.Info("permission catalog ensured", zap.Int("count", len(models.BuiltinPermissions)))
	return nil
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, apperr.Internal("list permissions", err)
	}
	return perms, nil
}

// ListRoles returns the organization's roles with permissions and member counts.
func (s *Service) ListRoles(ctx context.Context, orgID uuid.UUID) ([]models.RoleDetail, error) {
	list, err := s.store.ListRoles(ctx, orgID)
	if err != nil {
		return nil, apperr.Internal("list roles", err)
	}
	if list == nil {
		list = []models.RoleDetail{}
	}
	return list, nil
}

// Get returns a role of orgID. Roles of other organizations are reported as missing.
func (s *Service) Get(ctx context.Context, orgID, roleID uuid.UUID) (*models.Role, error) {
	role, err := s.store.GetRole(ctx, roleID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && role.OrganizationID != orgID) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, apperr.Internal("load role", err)
	}
	return role, nil
}

// Create adds a custom role to orgID.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in CreateInput) (*models.RoleDetail, error) {
	name := strings.TrimSpace(in.Name)
	slug := utils.Slugify(name)
	if len(name) < 2 || len(name) > 64 || !utils.ValidSlug(slug) {
		return nil, ErrInvalidRoleName
	}
	perms := dedupe(in.Permissions)
	if len(perms) == 0 {
		return nil, ErrNoPermissions
	}

	role := &models.Role{
		OrganizationID: orgID,
		Name:           name,
		Slug:           slug,
		Description:    strings.TrimSpace(in.Description),
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateRole(ctx, role); err != nil {
			if errors.Is(err, database.ErrConflict) {
				return ErrRoleExists
			}
			return apperr.Internal("create role", err)
		}
		return s.setPermissions(ctx, role.ID, perms)
	})
	if err != nil {
		return nil, err
	}
	return &models.RoleDetail{Role: *role, Permissions: perms}, nil
}

// Update renames or redescribes a custom role.
func (s *Service) Update(ctx context.Context, orgID, roleID uuid.UUID, in UpdateInput) (*models.Role, error) {
	role, err := s.Get(ctx, orgID, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystemRole {
		return nil, ErrSystemRole
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		slug := utils.Slugify(name)
		if len(name) < 2 || len(name) > 64 || !utils.ValidSlug(slug) {
			return nil, ErrInvalidRoleName
		}
		role.Name, role.Slug = name, slug
	}
	if in.Description != nil {
		role.Description = strings.TrimSpace(*in.Description)
	}
	if err := s.store.UpdateRole(ctx, role); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, ErrRoleExists
		}
		return nil, apperr.Internal("update role", err)
	}
	return role, nil
}

// Delete removes a custom role that no member holds.
func (s *Service) Delete(ctx context.Context, orgID, roleID uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		role, err := s.Get(ctx, orgID, roleID)
		if err != nil {
			return err
		}
		if role.IsSystemRole {
			return ErrSystemRole
		}
		n, err := s.store.CountRoleMembers(ctx, roleID)
		if err != nil {
			return apperr.Internal("count role members", err)
		}
		if n > 0 {
			return ErrRoleInUse
		}
		if err := s.store.DeleteRole(ctx, roleID); err != nil {
			return apperr.Internal("delete role", err)
		}
		return nil
	})
}

// AssignPermissions replaces the permission set of a custom role.
func (s *Service) AssignPermissions(ctx context.Context, orgID, roleID uuid.UUID, slugs []string) ([]string, error) {
	perms := dedupe(slugs)
	if len(perms) == 0 {
		return nil, ErrNoPermissions
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		role, err := s.Get(ctx, orgID, roleID)
		if err != nil {
			return err
		}
		if role.IsSystemRole {
			return ErrSystemRole
		}
		return s.setPermissions(ctx, roleID, perms)
	})
	if err != nil {
		return nil, err
	}
	return perms, nil
}

// SeedSystemRoles creates the admin role with every catalog permission and the
// default member role for a new organization. It must run inside a transaction.
func (s *Service) SeedSystemRoles(ctx context.Context, orgID uuid.UUID) (admin, member *models.Role, err error) {
	catalog, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, nil, apperr.Internal("list permissions", err)
	}
	all := make([]string, 0, len(catalog))
	for _, p := range catalog {
		all = append(all, p.Slug)
	}

	admin = &models.Role{
		OrganizationID: orgID,
		Name:           models.RoleSlugAdmin,
		Slug:           models.RoleSlugAdmin,
		Description:    "Full access to the organization",
		IsSystemRole:   true,
	}
	member = &models.Role{
		OrganizationID: orgID,
		Name:           models.RoleSlugMember,
		Slug:           models.RoleSlugMember,
		Description:    "Default role for new members",
	}
	for _, seed := range []struct {
		role  *models.Role
		perms []string
	}{{admin, all}, {member, models.DefaultMemberPermissions}} {
		if err := s.store.CreateRole(ctx, seed.role); err != nil {
			return nil, nil, apperr.Internal("create role "+seed.role.Slug, err)
		}
		if err := s.setPermissions(ctx, seed.role.ID, seed.perms); err != nil {
			return nil, nil, err
		}
	}
	return admin, member, nil
}

func (s *Service) setPermissions(ctx context.Context, roleID uuid.UUID, slugs []string) error {
	err := s.store.SetRolePermissions(ctx, roleID, slugs)
	if errors.Is(err, database.ErrNotFound) {
		return ErrUnknownPermission
	}
	if err != nil {
		return apperr.Internal("set role permissions", err)
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
