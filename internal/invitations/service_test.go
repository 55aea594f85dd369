package invitations

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/teamspace/backend/internal/auth"
	"github.com/teamspace/backend/internal/memstore"
	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/notify"
	"github.com/teamspace/backend/internal/organizations"
	"github.com/teamspace/backend/internal/roles"
	"github.com/teamspace/backend/internal/securetoken"
	"github.com/teamspace/backend/internal/tenant"
	"github.com/teamspace/backend/pkg/apperr"
)

func TestMain(m *testing.M) {
	auth.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type fixture struct {
	store    *memstore.Store
	svc      *Service
	notifier *notify.Recorder
	owner    *models.User
	org      *models.Organization
	member   *models.Role
	admin    *models.Role
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	roleSvc := roles.NewService(store, store, nil)
	require.NoError(t, roleSvc.EnsurePermissions(ctx))
	tokens := securetoken.NewManager(store, store)
	notifier := notify.NewRecorder()
	resolver := tenant.NewResolver(store)
	sessions := auth.NewSessionManager(store, store, resolver, auth.NewJWTService("invitation-test-secret-32-bytes!!", "test"), auth.DefaultSessionConfig(), nil)
	orgs := organizations.NewService(store, store, roleSvc, tokens, notifier, store, nil)

	owner := &models.User{Email: "owner@example.com", FirstName: "Olive", LastName: "Owner", IsActive: true}
	require.NoError(t, store.CreateUser(ctx, owner))
	org, err := orgs.Create(ctx, owner.ID, "Acme", "")
	require.NoError(t, err)
	member, err := store.GetRoleBySlug(ctx, org.ID, models.RoleSlugMember)
	require.NoError(t, err)
	admin, err := store.GetRoleBySlug(ctx, org.ID, models.RoleSlugAdmin)
	require.NoError(t, err)

	return &fixture{
		store:    store,
		svc:      NewService(store, store, roleSvc, tokens, sessions, notifier, nil),
		notifier: notifier,
		owner:    owner,
		org:      org,
		member:   member,
		admin:    admin,
	}
}

func (f *fixture) lastToken() string {
	return f.notifier.LastToken(models.EmailTypeInvitation)
}

func TestInviteAndAcceptNewAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Invite(ctx, f.owner.ID, f.org.ID, " New@Example.com ", f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", inv.Email)
	assert.Equal(t, "member", inv.RoleName)
	msgs := f.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "Olive Owner invited you to join Acme")

	_, err = f.svc.Accept(ctx, AcceptInput{Token: f.lastToken()})
	assert.ErrorIs(t, err, ErrDetailsRequired)

	s, err := f.svc.Accept(ctx, AcceptInput{Token: f.lastToken(), FirstName: "New", LastName: "Person", Password: "new-password-1"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", s.User.Email)
	require.NotNil(t, s.Tenant)
	assert.Equal(t, f.org.ID, s.Tenant.OrganizationID)
	assert.Equal(t, models.RoleSlugMember, s.Tenant.Role.Slug)
	assert.NotEmpty(t, s.Tokens.RefreshToken)

	_, err = f.svc.Accept(ctx, AcceptInput{Token: f.lastToken(), FirstName: "New", LastName: "Person", Password: "new-password-1"})
	assert.ErrorIs(t, err, securetoken.ErrUsed)

	pending, err := f.svc.ListPending(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAcceptExistingAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	bob := &models.User{Email: "bob@example.com", FirstName: "Bob", LastName: "B", IsActive: true}
	require.NoError(t, f.store.CreateUser(ctx, bob))

	_, err := f.svc.Invite(ctx, f.owner.ID, f.org.ID, "bob@example.com", f.admin.ID)
	require.NoError(t, err)
	s, err := f.svc.Accept(ctx, AcceptInput{Token: f.lastToken()})
	require.NoError(t, err)
	assert.Equal(t, bob.ID, s.User.ID)
	assert.Equal(t, models.RoleSlugAdmin, s.Tenant.Role.Slug)

	u, err := f.store.GetUserByID(ctx, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, u.CurrentOrganizationID)
	assert.Equal(t, f.org.ID, *u.CurrentOrganizationID)
}

func TestAcceptDisabledAccountKeepsToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	bob := &models.User{Email: "bob@example.com", FirstName: "Bob", LastName: "B", IsActive: true}
	require.NoError(t, f.store.CreateUser(ctx, bob))
	_, err := f.svc.Invite(ctx, f.owner.ID, f.org.ID, "bob@example.com", f.member.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.DeactivateUser(ctx, bob.ID))

	_, err = f.svc.Accept(ctx, AcceptInput{Token: f.lastToken()})
	assert.ErrorIs(t, err, ErrAccountDisabled)

	pending, err := f.svc.ListPending(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "a failed accept leaves the invitation pending")
}

func TestInviteConflicts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Invite(ctx, f.owner.ID, f.org.ID, "owner@example.com", f.member.ID)
	assert.ErrorIs(t, err, ErrAlreadyMember)

	_, err = f.svc.Invite(ctx, f.owner.ID, f.org.ID, "bob@example.com", f.member.ID)
	require.NoError(t, err)
	_, err = f.svc.Invite(ctx, f.owner.ID, f.org.ID, "BOB@example.com", f.member.ID)
	assert.ErrorIs(t, err, ErrAlreadyInvited)

	_, err = f.svc.Invite(ctx, f.owner.ID, f.org.ID, "carol@example.com", uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = f.svc.Invite(ctx, f.owner.ID, f.org.ID, "not-an-email", f.member.ID)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	_, err = f.svc.Invite(ctx, f.owner.ID, uuid.New(), "carol@example.com", f.member.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestResendAndRevoke(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Invite(ctx, f.owner.ID, f.org.ID, "bob@example.com", f.member.ID)
	require.NoError(t, err)
	first := f.lastToken()

	resent, err := f.svc.Resend(ctx, f.owner.ID, f.org.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, resent.ID)
	assert.Equal(t, "member", resent.RoleName)
	second := f.lastToken()
	assert.NotEqual(t, first, second)

	_, err = f.svc.Accept(ctx, AcceptInput{Token: first, FirstName: "B", LastName: "B", Password: "password-123"})
	assert.ErrorIs(t, err, securetoken.ErrNotFound)

	_, err = f.svc.Resend(ctx, f.owner.ID, uuid.New(), inv.ID)
	assert.ErrorIs(t, err, ErrInvitationNotFound, "invitations are scoped to their organization")
	assert.ErrorIs(t, f.svc.Revoke(ctx, uuid.New(), inv.ID), ErrInvitationNotFound)

	require.NoError(t, f.svc.Revoke(ctx, f.org.ID, inv.ID))
	assert.ErrorIs(t, f.svc.Revoke(ctx, f.org.ID, inv.ID), securetoken.ErrProcessed)
	_, err = f.svc.Accept(ctx, AcceptInput{Token: second, FirstName: "B", LastName: "B", Password: "password-123"})
	assert.ErrorIs(t, err, securetoken.ErrUsed)

	_, err = f.svc.Invite(ctx, f.owner.ID, f.org.ID, "bob@example.com", f.member.ID)
	assert.NoError(t, err, "a revoked invitation no longer blocks a new one")
}
