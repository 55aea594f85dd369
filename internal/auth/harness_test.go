package auth

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/teamspace/backend/internal/memstore"
	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/notify"
	"github.com/teamspace/backend/internal/organizations"
	"github.com/teamspace/backend/internal/roles"
	"github.com/teamspace/backend/internal/securetoken"
	"github.com/teamspace/backend/internal/tenant"
)

func TestMain(m *testing.M) {
	PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

const testSecret = "test-secret-at-least-32-bytes-long!!"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Now()} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store    *memstore.Store
	clock    *clock
	jwt      *JWTService
	sessions *SessionManager
	svc      *Service
	orgs     *organizations.Service
	notifier *notify.Recorder
}

func newHarness(t *testing.T, cfg SessionConfig) *harness {
	t.Helper()
	store := memstore.New()
	clk := newClock()
	resolver := tenant.NewResolver(store)
	jwtSvc := NewJWTService(testSecret, "teamspace-test").WithClock(clk.Now)
	sessions := NewSessionManager(store, store, resolver, jwtSvc, cfg, nil).WithClock(clk.Now)
	tokens := securetoken.NewManager(store, store)
	notifier := notify.NewRecorder()
	roleSvc := roles.NewService(store, store, nil)
	require.NoError(t, roleSvc.EnsurePermissions(context.Background()))
	orgs := organizations.NewService(store, store, roleSvc, tokens, notifier, store, nil)
	svc := NewService(store, sessions, resolver, tokens, orgs, notifier, store, nil)
	return &harness{
		store:    store,
		clock:    clk,
		jwt:      jwtSvc,
		sessions: sessions,
		svc:      svc,
		orgs:     orgs,
		notifier: notifier,
	}
}

func (h *harness) register(t *testing.T, email, orgName string) *Session {
	t.Helper()
	s, err := h.svc.Register(context.Background(), RegisterInput{
		Email:            email,
		Password:         "correct-horse",
		FirstName:        "Ann",
		LastName:         "Lee",
		OrganizationName: orgName,
	})
	require.NoError(t, err)
	return s
}

func (h *harness) addMember(t *testing.T, userID, orgID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	role, err := h.store.GetRoleBySlug(ctx, orgID, models.RoleSlugMember)
	require.NoError(t, err)
	require.NoError(t, h.store.CreateMembership(ctx, &models.Membership{
		UserID: userID, OrganizationID: orgID, RoleID: role.ID, Status: models.MembershipActive,
	}))
}
