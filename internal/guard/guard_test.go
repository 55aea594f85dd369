package guard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamspace/backend/internal/guard"
	"github.com/teamspace/backend/internal/memstore"
	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/roles"
	"github.com/teamspace/backend/internal/tenant"
	"github.com/teamspace/backend/pkg/apperr"
)

type staticVerifier map[string]*guard.Principal

func (v staticVerifier) VerifyAccessToken(token string) (*guard.Principal, error) {
	p, ok := v[token]
	if !ok {
		return nil, apperr.Unauthorized("invalid token")
	}
	return p, nil
}

type fixture struct {
	store    *memstore.Store
	resolver *tenant.Resolver
	orgID    uuid.UUID
	admin    *models.Role
	member   *models.Role
	userID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	roleSvc := roles.NewService(store, store, nil)
	require.NoError(t, roleSvc.EnsurePermissions(ctx))

	org := &models.Organization{Name: "Acme", Slug: "acme", IsActive: true}
	require.NoError(t, store.CreateOrganization(ctx, org))
	f := &fixture{store: store, resolver: tenant.NewResolver(store), orgID: org.ID, userID: uuid.New()}
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		f.admin, f.member, err = roleSvc.SeedSystemRoles(ctx, org.ID)
		return err
	}))
	require.NoError(t, store.CreateMembership(ctx, &models.Membership{
		UserID: f.userID, OrganizationID: org.ID, RoleID: f.member.ID, Status: models.MembershipActive,
	}))
	return f
}

func TestRunStopsAtFirstRejection(t *testing.T) {
	t.Parallel()
	var calls []string
	stage := func(name string, err error) guard.Stage {
		return guard.Stage{Name: name, Fn: func(_ context.Context, req guard.Request) (guard.Request, error) {
			calls = append(calls, name)
			return req, err
		}}
	}
	boom := errors.New("boom")
	_, err := guard.Run(context.Background(), guard.Request{}, stage("a", nil), stage("b", boom), stage("c", nil))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	v := staticVerifier{"good": {UserID: userID}}
	ctx := context.Background()

	_, err := guard.Run(ctx, guard.Request{}, guard.Authenticate(v))
	assert.ErrorIs(t, err, guard.ErrAuthenticationRequired)

	_, err = guard.Run(ctx, guard.Request{Token: "bad"}, guard.Authenticate(v))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	req, err := guard.Run(ctx, guard.Request{Token: "good"}, guard.Authenticate(v))
	require.NoError(t, err)
	assert.Equal(t, userID, req.Principal.UserID)
}

func TestResolveTenant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	other := uuid.New()

	tests := []struct {
		name     string
		req      guard.Request
		required bool
		wantErr  error
		wantRole string
		noTenant bool
	}{
		{
			name:     "route parameter",
			req:      guard.Request{OrgParam: f.orgID.String(), Principal: &guard.Principal{UserID: f.userID}},
			wantRole: "member",
		},
		{
			name:     "token organization",
			req:      guard.Request{Principal: &guard.Principal{UserID: f.userID, OrganizationID: &f.orgID, RoleName: "member"}},
			wantRole: "member",
		},
		{
			name:    "malformed parameter",
			req:     guard.Request{OrgParam: "nope", Principal: &guard.Principal{UserID: f.userID}},
			wantErr: guard.ErrInvalidOrganizationID,
		},
		{
			name:     "no organization when optional",
			req:      guard.Request{Principal: &guard.Principal{UserID: f.userID}},
			noTenant: true,
		},
		{
			name:     "no organization when required",
			req:      guard.Request{Principal: &guard.Principal{UserID: f.userID}},
			required: true,
			wantErr:  guard.ErrOrganizationRequired,
		},
		{
			name:    "not a member",
			req:     guard.Request{OrgParam: f.orgID.String(), Principal: &guard.Principal{UserID: other}},
			wantErr: tenant.ErrNotMember,
		},
		{
			name:    "not a member via token",
			req:     guard.Request{Principal: &guard.Principal{UserID: other, OrganizationID: &f.orgID, RoleName: "admin"}},
			wantErr: tenant.ErrNotMember,
		},
		{
			name:    "unauthenticated",
			req:     guard.Request{OrgParam: f.orgID.String()},
			wantErr: guard.ErrAuthenticationRequired,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := guard.Run(ctx, tt.req, guard.ResolveTenant(f.resolver, tt.required))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.noTenant {
				assert.Nil(t, got.Tenant)
				return
			}
			require.NotNil(t, got.Tenant)
			assert.Equal(t, f.orgID, got.Tenant.OrganizationID)
			assert.Equal(t, tt.wantRole, got.Tenant.Role.Name)
			assert.Equal(t, f.member.ID, got.Tenant.Role.ID)
		})
	}
}

func TestResolveTenantRejectsSuspendedMember(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpdateMembershipStatus(ctx, f.userID, f.orgID, models.MembershipSuspended))

	req := guard.Request{Principal: &guard.Principal{UserID: f.userID, OrganizationID: &f.orgID, RoleName: "member"}}
	_, err := guard.Run(ctx, req, guard.ResolveTenant(f.resolver, true))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestResolveTenantRejectsUnavailableOrganization(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	closed := &models.Organization{Name: "Closed", Slug: "closed", IsActive: false}
	require.NoError(t, f.store.CreateOrganization(ctx, closed))
	require.NoError(t, f.store.CreateMembership(ctx, &models.Membership{
		UserID: f.userID, OrganizationID: closed.ID, RoleID: f.member.ID, Status: models.MembershipActive,
	}))

	for name, req := range map[string]guard.Request{
		"route parameter":    {OrgParam: closed.ID.String(), Principal: &guard.Principal{UserID: f.userID}},
		"token organization": {Principal: &guard.Principal{UserID: f.userID, OrganizationID: &closed.ID, RoleName: "member"}},
	} {
		_, err := guard.Run(ctx, req, guard.ResolveTenant(f.resolver, true))
		assert.ErrorIs(t, err, tenant.ErrOrganizationNotFound, name)
	}
}

func TestRequirePermissionsMessageForSinglePermission(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	req := guard.Request{Principal: &guard.Principal{UserID: f.userID, OrganizationID: &f.orgID, RoleName: "member"}}
	_, err := guard.Run(context.Background(), req,
		guard.ResolveTenant(f.resolver, true),
		guard.RequirePermissions(f.resolver, models.PermMembersManage),
	)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, "requires permission: members.manage", apperr.MessageOf(err))
}

func TestRequireRoles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	member := guard.Request{Tenant: &tenant.Context{Role: tenant.Role{Name: "member"}}}

	_, err := guard.Run(ctx, member, guard.RequireRoles("admin"))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, "requires role: admin", apperr.MessageOf(err))

	_, err = guard.Run(ctx, member, guard.RequireRoles("admin", "owner"))
	assert.Equal(t, "requires one of roles: admin, owner", apperr.MessageOf(err))

	_, err = guard.Run(ctx, member, guard.RequireRoles("admin", "member"))
	assert.NoError(t, err)

	_, err = guard.Run(ctx, guard.Request{}, guard.RequireRoles("member"))
	assert.ErrorIs(t, err, guard.ErrOrganizationRequired)

	_, err = guard.Run(ctx, guard.Request{Tenant: &tenant.Context{Role: tenant.Role{Name: "Member"}}}, guard.RequireRoles("member"))
	assert.Error(t, err, "role names match exactly")
}

func TestRequirePermissionsReadsLiveGrants(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	stages := []guard.Stage{
		guard.ResolveTenant(f.resolver, true),
		guard.RequirePermissions(f.resolver, models.PermRolesManage, models.PermMembersInvite),
	}
	req := guard.Request{Principal: &guard.Principal{UserID: f.userID, OrganizationID: &f.orgID, RoleName: "member"}}

	_, err := guard.Run(ctx, req, stages...)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, "requires one of permissions: roles.manage, members.invite", apperr.MessageOf(err))

	require.NoError(t, f.store.SetRolePermissions(ctx, f.member.ID, []string{models.PermMembersInvite}))
	got, err := guard.Run(ctx, req, stages...)
	require.NoError(t, err)
	assert.True(t, got.Tenant.HasPermission(models.PermMembersInvite))

	require.NoError(t, f.store.UpdateMembershipRole(ctx, f.userID, f.orgID, f.admin.ID))
	got, err = guard.Run(ctx, req, stages...)
	require.NoError(t, err)
	assert.True(t, got.Tenant.HasPermission(models.PermRolesManage))
}

func TestRequirePermissionsNeedsTenant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := guard.Run(context.Background(), guard.Request{Principal: &guard.Principal{UserID: f.userID}}, guard.RequirePermissions(f.resolver, models.PermRolesRead))
	assert.ErrorIs(t, err, guard.ErrOrganizationRequired)
}
