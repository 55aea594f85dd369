package roles

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamspace/backend/internal/memstore"
	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/apperr"
)

func newTestService(t *testing.T) (*Service, *memstore.Store, uuid.UUID) {
	t.Helper()
	store := memstore.New()
	svc := NewService(store, store, nil)
	ctx := context.Background()
	require.NoError(t, svc.EnsurePermissions(ctx))
	orgID := uuid.New()
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context) error {
		_, _, err := svc.SeedSystemRoles(ctx, orgID)
		return err
	}))
	return svc, store, orgID
}

func roleBySlug(t *testing.T, list []models.RoleDetail, slug string) models.RoleDetail {
	t.Helper()
	for _, r := range list {
		if r.Slug == slug {
			return r
		}
	}
	t.Fatalf("role %q not found", slug)
	return models.RoleDetail{}
}

func TestEnsurePermissionsIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	require.NoError(t, svc.EnsurePermissions(context.Background()))

	perms, err := svc.ListPermissions(context.Background())
	require.NoError(t, err)
	assert.Len(t, perms, len(models.BuiltinPermissions))
}

func TestSeedSystemRoles(t *testing.T) {
	svc, _, orgID := newTestService(t)

	list, err := svc.ListRoles(context.Background(), orgID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	admin := roleBySlug(t, list, models.RoleSlugAdmin)
	assert.True(t, admin.IsSystemRole)
	assert.Len(t, admin.Permissions, len(models.BuiltinPermissions))

	member := roleBySlug(t, list, models.RoleSlugMember)
	assert.False(t, member.IsSystemRole)
	assert.ElementsMatch(t, models.DefaultMemberPermissions, member.Permissions)
}

func TestCreateRole(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
		kind apperr.Kind
	}{
		{name: "no permissions", in: CreateInput{Name: "Reviewer"}, kind: apperr.KindBadRequest},
		{name: "unknown permission", in: CreateInput{Name: "Reviewer", Permissions: []string{"tasks.fly"}}, kind: apperr.KindBadRequest},
		{name: "name too short", in: CreateInput{Name: "R", Permissions: []string{models.PermTasksRead}}, kind: apperr.KindBadRequest},
		{name: "duplicate slug", in: CreateInput{Name: "Member", Permissions: []string{models.PermTasksRead}}, kind: apperr.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, orgID := newTestService(t)
			_, err := svc.Create(context.Background(), orgID, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	t.Run("ok", func(t *testing.T) {
		svc, _, orgID := newTestService(t)
		role, err := svc.Create(context.Background(), orgID, CreateInput{
			Name:        "Task Reviewer",
			Permissions: []string{models.PermTasksRead, models.PermTasksRead, models.PermCommentsCreate},
		})
		require.NoError(t, err)
		assert.Equal(t, "task-reviewer", role.Slug)
		assert.Equal(t, []string{models.PermTasksRead, models.PermCommentsCreate}, role.Permissions)
	})

	t.Run("failed permission write leaves no role", func(t *testing.T) {
		svc, _, orgID := newTestService(t)
		_, err := svc.Create(context.Background(), orgID, CreateInput{Name: "Ghost", Permissions: []string{"nope"}})
		require.Error(t, err)
		list, err := svc.ListRoles(context.Background(), orgID)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}

func TestSystemRolesAreProtected(t *testing.T) {
	svc, _, orgID := newTestService(t)
	ctx := context.Background()
	list, err := svc.ListRoles(ctx, orgID)
	require.NoError(t, err)
	admin := roleBySlug(t, list, models.RoleSlugAdmin)

	name := "Owner"
	_, err = svc.Update(ctx, orgID, admin.ID, UpdateInput{Name: &name})
	assert.ErrorIs(t, err, ErrSystemRole)

	assert.ErrorIs(t, svc.Delete(ctx, orgID, admin.ID), ErrSystemRole)

	_, err = svc.AssignPermissions(ctx, orgID, admin.ID, []string{models.PermTasksRead})
	assert.ErrorIs(t, err, ErrSystemRole)
}

func TestAssignPermissionsRejectsEmptyFirst(t *testing.T) {
	svc, _, orgID := newTestService(t)
	ctx := context.Background()

	_, err := svc.AssignPermissions(ctx, orgID, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNoPermissions)

	list, err := svc.ListRoles(ctx, orgID)
	require.NoError(t, err)
	admin := roleBySlug(t, list, models.RoleSlugAdmin)
	_, err = svc.AssignPermissions(ctx, orgID, admin.ID, []string{" "})
	assert.ErrorIs(t, err, ErrNoPermissions)
}

func TestAssignPermissionsReplacesSet(t *testing.T) {
	svc, _, orgID := newTestService(t)
	ctx := context.Background()
	list, err := svc.ListRoles(ctx, orgID)
	require.NoError(t, err)
	member := roleBySlug(t, list, models.RoleSlugMember)

	perms, err := svc.AssignPermissions(ctx, orgID, member.ID, []string{models.PermMembersInvite})
	require.NoError(t, err)
	assert.Equal(t, []string{models.PermMembersInvite}, perms)

	list, err = svc.ListRoles(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, []string{models.PermMembersInvite}, roleBySlug(t, list, models.RoleSlugMember).Permissions)
}

func TestRoleFromOtherOrganizationIsNotFound(t *testing.T) {
	svc, _, orgID := newTestService(t)
	ctx := context.Background()
	list, err := svc.ListRoles(ctx, orgID)
	require.NoError(t, err)
	member := roleBySlug(t, list, models.RoleSlugMember)

	_, err = svc.Get(ctx, uuid.New(), member.ID)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestDeleteRole(t *testing.T) {
	svc, store, orgID := newTestService(t)
	ctx := context.Background()
	role, err := svc.Create(ctx, orgID, CreateInput{Name: "Reviewer", Permissions: []string{models.PermTasksRead}})
	require.NoError(t, err)

	require.NoError(t, store.CreateMembership(ctx, &models.Membership{
		UserID: uuid.New(), OrganizationID: orgID, RoleID: role.ID, Status: models.MembershipSuspended,
	}))
	assert.ErrorIs(t, svc.Delete(ctx, orgID, role.ID), ErrRoleInUse)

	other, err := svc.Create(ctx, orgID, CreateInput{Name: "Auditor", Permissions: []string{models.PermTasksRead}})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, orgID, other.ID))
	_, err = svc.Get(ctx, orgID, other.ID)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}
