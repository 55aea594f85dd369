package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/teamspace/backend/config"
	"github.com/teamspace/backend/internal/auth"
	"github.com/teamspace/backend/internal/invitations"
	"github.com/teamspace/backend/internal/memstore"
	"github.com/teamspace/backend/internal/middleware"
	"github.com/teamspace/backend/internal/notify"
	"github.com/teamspace/backend/internal/organizations"
	"github.com/teamspace/backend/internal/roles"
	"github.com/teamspace/backend/internal/securetoken"
	"github.com/teamspace/backend/internal/tenant"
	"github.com/teamspace/backend/pkg/database"
)

// stores groups the persistence backends the services depend on.
type stores struct {
	users   auth.UserStore
	refresh auth.RefreshTokenStore
	tenant  tenant.Store
	tokens  securetoken.Store
	roles   roles.Store
	orgs    organizations.Store
	tx      database.TxRunner
}

func memoryStores() stores {
	m := memstore.New()
	return stores{users: m, refresh: m, tenant: m, tokens: m, roles: m, orgs: m, tx: m}
}

func postgresStores(pool *pgxpool.Pool) stores {
	authRepo := auth.NewRepository(pool)
	return stores{
		users:   authRepo,
		refresh: authRepo,
		tenant:  tenant.NewRepository(pool),
		tokens:  securetoken.NewRepository(pool),
		roles:   roles.NewRepository(pool),
		orgs:    organizations.NewRepository(pool),
		tx:      database.NewTxManager(pool),
	}
}

// app holds the wired services and handlers.
type app struct {
	cfg      *config.Config
	jwt      *auth.JWTService
	resolver *tenant.Resolver
	roleSvc  *roles.Service

	authHandler   *auth.Handler
	orgHandler    *organizations.Handler
	roleHandler   *roles.Handler
	inviteHandler *invitations.Handler
	limiter       *middleware.RateLimiter
}

func newApp(cfg *config.Config, st stores, notifier notify.Notifier, logger *zap.Logger) *app {
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
	resolver := tenant.NewResolver(st.tenant)
	tokens := securetoken.NewManager(st.tokens, st.tx)
	roleSvc := roles.NewService(st.roles, st.tx, logger.Named("roles"))
	orgSvc := organizations.NewService(st.orgs, st.users, roleSvc, tokens, notifier, st.tx, logger.Named("organizations"))

	sessions := auth.NewSessionManager(st.users, st.refresh, resolver, jwtSvc, auth.SessionConfig{
		RefreshTTL:          cfg.Session.RefreshTTL,
		RememberMeTTL:       cfg.Session.RememberMeTTL,
		RotateRefreshTokens: cfg.Session.Rotate,
	}, logger.Named("sessions"))
	authSvc := auth.NewService(st.users, sessions, resolver, tokens, orgSvc, notifier, st.tx, logger.Named("auth"))
	inviteSvc := invitations.NewService(st.orgs, st.users, roleSvc, tokens, sessions, notifier, logger.Named("invitations"))

	// A typed nil would defeat the handler's "not configured" check.
	var provider auth.OAuthProvider
	if cfg.Google.Enabled() {
		provider = auth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	}
	cookies := auth.CookieConfig{Secure: cfg.SecureCookies()}

	return &app{
		cfg:           cfg,
		jwt:           jwtSvc,
		resolver:      resolver,
		roleSvc:       roleSvc,
		authHandler:   auth.NewHandler(authSvc, provider, cookies, cfg.Google.FrontendURL, logger.Named("auth")),
		orgHandler:    organizations.NewHandler(orgSvc),
		roleHandler:   roles.NewHandler(roleSvc),
		inviteHandler: invitations.NewHandler(inviteSvc, cookies),
		limiter:       middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
	}
}
