// Package tenant resolves a user's organization context: membership, role and permissions.
package tenant

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/apperr"
	"github.com/teamspace/backend/pkg/database"
)

var (
	ErrNotMember            = apperr.Forbidden("you are not an active member of this organization")
	ErrOrganizationNotFound = apperr.NotFound("organization not found")
)

// Store reads memberships, organizations and roles.
type Store interface {
	GetMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error)
	GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	GetRole(ctx context.Context, roleID uuid.UUID) (*models.Role, error)
	ListRolePermissionSlugs(ctx context.Context, roleID uuid.UUID) ([]string, error)
	// ListMemberPermissionSlugs returns database.ErrNotFound unless the user
	// has an active membership in the organization.
	ListMemberPermissionSlugs(ctx context.Context, userID, orgID uuid.UUID) ([]string, error)
	ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]models.UserOrganization, error)
}

// Role is the role part of a tenant context.
type Role struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	IsSystemRole bool      `json:"is_system_role"`
	Permissions  []string  `json:"permissions,omitempty"`
}

// Context is the organization a request acts within.
type Context struct {
	OrganizationID   uuid.UUID `json:"organization_id"`
	OrganizationName string    `json:"organization_name,omitempty"`
	OrganizationSlug string    `json:"organization_slug,omitempty"`
	Role             Role      `json:"role"`
}

// HasPermission reports whether the loaded permission set contains slug.
func (c *Context) HasPermission(slug string) bool {
	for _, p := range c.Role.Permissions {
		if p == slug {
			return true
		}
	}
	return false
}

// Resolver builds tenant contexts from live membership data.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve loads the user's context in orgID. The membership must be active and
// the organization available. Permissions are loaded when withPermissions is set.
func (r *Resolver) Resolve(ctx context.Context, userID, orgID uuid.UUID, withPermissions bool) (*Context, error) {
	m, err := r.VerifyMembership(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	org, err := r.Organization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	role, err := r.store.GetRole(ctx, m.RoleID)
	if err != nil {
		return nil, apperr.Internal("load role", err)
	}

	tc := &Context{
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		OrganizationSlug: org.Slug,
		Role: Role{
			ID:           role.ID,
			Name:         role.Name,
			Slug:         role.Slug,
			IsSystemRole: role.IsSystemRole,
		},
	}
	if withPermissions {
		perms, err := r.store.ListRolePermissionSlugs(ctx, role.ID)
		if err != nil {
			return nil, apperr.Internal("load permissions", err)
		}
		tc.Role.Permissions = sortedCopy(perms)
	}
	return tc, nil
}

// Organization loads orgID and fails with ErrOrganizationNotFound unless it
// is active and not deleted.
func (r *Resolver) Organization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := r.store.GetOrganization(ctx, orgID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && !org.Available()) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, apperr.Internal("load organization", err)
	}
	return org, nil
}

// VerifyMembership returns the membership if it exists and is active.
func (r *Resolver) VerifyMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error) {
	m, err := r.store.GetMembership(ctx, userID, orgID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, apperr.Internal("load membership", err)
	}
	if m.Status != models.MembershipActive {
		return nil, ErrNotMember
	}
	return m, nil
}

// MemberPermissions reads the permission slugs of the user's current role in orgID.
func (r *Resolver) MemberPermissions(ctx context.Context, userID, orgID uuid.UUID) ([]string, error) {
	perms, err := r.store.ListMemberPermissionSlugs(ctx, userID, orgID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, apperr.Internal("load permissions", err)
	}
	return sortedCopy(perms), nil
}

// Current resolves the user's selected organization. It returns nil without
// error when none is selected or the membership is no longer usable.
func (r *Resolver) Current(ctx context.Context, user *models.User) (*Context, error) {
	if user.CurrentOrganizationID == nil {
		return nil, nil
	}
	tc, err := r.Resolve(ctx, user.ID, *user.CurrentOrganizationID, false)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindForbidden, apperr.KindNotFound:
			return nil, nil
		}
		return nil, err
	}
	return tc, nil
}

// Organizations lists every organization the user belongs to.
func (r *Resolver) Organizations(ctx context.Context, userID uuid.UUID) ([]models.UserOrganization, error) {
	orgs, err := r.store.ListUserOrganizations(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("list organizations", err)
	}
	if orgs == nil {
		orgs = []models.UserOrganization{}
	}
	return orgs, nil
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
