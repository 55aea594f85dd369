package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamspace/backend/internal/memstore"
	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/tenant"
)

type org struct {
	store  *memstore.Store
	id     uuid.UUID
	role   *models.Role
	userID uuid.UUID
}

func seed(t *testing.T) *org {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	for _, slug := range []string{models.PermMembersRead, models.PermRolesRead} {
		require.NoError(t, store.UpsertPermission(ctx, &models.Permission{Slug: slug}))
	}
	o := &models.Organization{Name: "Acme", Slug: "acme", IsActive: true}
	require.NoError(t, store.CreateOrganization(ctx, o))
	role := &models.Role{OrganizationID: o.ID, Name: "member", Slug: "member"}
	require.NoError(t, store.CreateRole(ctx, role))
	require.NoError(t, store.SetRolePermissions(ctx, role.ID, []string{models.PermRolesRead, models.PermMembersRead}))

	userID := uuid.New()
	require.NoError(t, store.CreateMembership(ctx, &models.Membership{
		UserID: userID, OrganizationID: o.ID, RoleID: role.ID, Status: models.MembershipActive,
	}))
	return &org{store: store, id: o.ID, role: role, userID: userID}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	o := seed(t)
	r := tenant.NewResolver(o.store)
	ctx := context.Background()

	tc, err := r.Resolve(ctx, o.userID, o.id, false)
	require.NoError(t, err)
	assert.Equal(t, "Acme", tc.OrganizationName)
	assert.Equal(t, o.role.ID, tc.Role.ID)
	assert.Empty(t, tc.Role.Permissions)

	tc, err = r.Resolve(ctx, o.userID, o.id, true)
	require.NoError(t, err)
	assert.Equal(t, []string{models.PermMembersRead, models.PermRolesRead}, tc.Role.Permissions)
	assert.True(t, tc.HasPermission(models.PermRolesRead))

	_, err = r.Resolve(ctx, uuid.New(), o.id, false)
	assert.ErrorIs(t, err, tenant.ErrNotMember)
}

func TestResolveRejectsSuspendedMembership(t *testing.T) {
	t.Parallel()
	o := seed(t)
	r := tenant.NewResolver(o.store)
	ctx := context.Background()
	require.NoError(t, o.store.UpdateMembershipStatus(ctx, o.userID, o.id, models.MembershipSuspended))

	_, err := r.Resolve(ctx, o.userID, o.id, false)
	assert.ErrorIs(t, err, tenant.ErrNotMember)
	_, err = r.MemberPermissions(ctx, o.userID, o.id)
	assert.ErrorIs(t, err, tenant.ErrNotMember)
}

func TestOrganizationAvailability(t *testing.T) {
	t.Parallel()
	o := seed(t)
	r := tenant.NewResolver(o.store)
	ctx := context.Background()

	got, err := r.Organization(ctx, o.id)
	require.NoError(t, err)
	assert.Equal(t, o.id, got.ID)

	_, err = r.Organization(ctx, uuid.New())
	assert.ErrorIs(t, err, tenant.ErrOrganizationNotFound)

	deleted := time.Now()
	gone := &models.Organization{Name: "Gone", Slug: "gone", IsActive: true, DeletedAt: &deleted}
	require.NoError(t, o.store.CreateOrganization(ctx, gone))
	_, err = r.Organization(ctx, gone.ID)
	assert.ErrorIs(t, err, tenant.ErrOrganizationNotFound)
}

func TestMemberPermissionsAreLive(t *testing.T) {
	t.Parallel()
	o := seed(t)
	r := tenant.NewResolver(o.store)
	ctx := context.Background()

	perms, err := r.MemberPermissions(ctx, o.userID, o.id)
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	require.NoError(t, o.store.SetRolePermissions(ctx, o.role.ID, []string{models.PermRolesRead}))
	perms, err = r.MemberPermissions(ctx, o.userID, o.id)
	require.NoError(t, err)
	assert.Equal(t, []string{models.PermRolesRead}, perms)
}

func TestCurrent(t *testing.T) {
	t.Parallel()
	o := seed(t)
	r := tenant.NewResolver(o.store)
	ctx := context.Background()

	tc, err := r.Current(ctx, &models.User{ID: o.userID})
	require.NoError(t, err)
	assert.Nil(t, tc)

	tc, err = r.Current(ctx, &models.User{ID: o.userID, CurrentOrganizationID: &o.id})
	require.NoError(t, err)
	require.NotNil(t, tc)
	assert.Equal(t, o.id, tc.OrganizationID)

	require.NoError(t, o.store.DeleteMembership(ctx, o.userID, o.id))
	tc, err = r.Current(ctx, &models.User{ID: o.userID, CurrentOrganizationID: &o.id})
	require.NoError(t, err)
	assert.Nil(t, tc, "a lost membership clears the current organization")
}
