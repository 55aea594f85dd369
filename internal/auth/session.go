package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/obs"
	"github.com/teamspace/backend/internal/tenant"
	"github.com/teamspace/backend/pkg/apperr"
	"github.com/teamspace/backend/pkg/database"
	"github.com/teamspace/backend/pkg/tokens"
)

var ErrSessionInvalid = apperr.Unauthorized("invalid or expired refresh token")

// SessionConfig controls refresh token lifetimes.
type SessionConfig struct {
	RefreshTTL    time.Duration
	RememberMeTTL time.Duration
	// RotateRefreshTokens issues a new refresh token on every refresh and
	// treats reuse of a replaced token as theft.
	RotateRefreshTokens bool
}

// DefaultSessionConfig returns 7-day sessions, 30 days with remember-me, no rotation.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		RefreshTTL:    7 * 24 * time.Hour,
		RememberMeTTL: 30 * 24 * time.Hour,
	}
}

// TokenPair is the credential set handed to a client. RefreshToken is empty
// when a refresh did not rotate it.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	RememberMe       bool      `json:"remember_me"`
	SessionID        uuid.UUID `json:"-"`
}

// Session is the result of a login or refresh.
type Session struct {
	Tokens TokenPair
	User   *models.User
	Tenant *tenant.Context
}

// LoginOptions tune a new session.
type LoginOptions struct {
	RememberMe bool
	// OrganizationID, when set, is selected and embedded in the access token.
	OrganizationID *uuid.UUID
}

// RevocationScope selects which sessions Logout revokes.
type RevocationScope struct {
	sessionID uuid.UUID
}

// RevokeAllSessions revokes every refresh token of the user.
func RevokeAllSessions() RevocationScope { return RevocationScope{} }

// RevokeSession revokes only the given session.
func RevokeSession(id uuid.UUID) RevocationScope { return RevocationScope{sessionID: id} }

// All reports whether the scope covers every session.
func (s RevocationScope) All() bool { return s.sessionID == uuid.Nil }

// SessionManager issues, refreshes and revokes sessions.
type SessionManager struct {
	users    UserStore
	refresh  RefreshTokenStore
	resolver *tenant.Resolver
	jwt      *JWTService
	cfg      SessionConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionManager creates a session manager.
func NewSessionManager(users UserStore, refresh RefreshTokenStore, resolver *tenant.Resolver, jwt *JWTService, cfg SessionConfig, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		users:    users,
		refresh:  refresh,
		resolver: resolver,
		jwt:      jwt,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock returns a copy of m that reads time from now.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	cp := *m
	cp.now = now
	return &cp
}

// Login starts a new session for an already authenticated user. Every call
// creates a new refresh token.
func (m *SessionManager) Login(ctx context.Context, user *models.User, opts LoginOptions) (*Session, error) {
	if !user.CanAuthenticate() {
		return nil, ErrInvalidCredentials
	}
	var tc *tenant.Context
	if opts.OrganizationID != nil {
		var err error
		tc, err = m.resolver.Resolve(ctx, user.ID, *opts.OrganizationID, true)
		if err != nil {
			return nil, err
		}
		if err := m.users.SetCurrentOrganization(ctx, user.ID, &tc.OrganizationID); err != nil {
			return nil, apperr.Internal("set current organization", err)
		}
		orgID := tc.OrganizationID
		user.CurrentOrganizationID = &orgID
	}

	raw, err := tokens.NewOpaque()
	if err != nil {
		return nil, apperr.Internal("generate refresh token", err)
	}
	ttl := m.cfg.RefreshTTL
	if opts.RememberMe {
		ttl = m.cfg.RememberMeTTL
	}
	row := &models.RefreshToken{
		ID:         uuid.New(),
		UserID:     user.ID,
		TokenHash:  tokens.Hash(raw),
		RememberMe: opts.RememberMe,
		ExpiresAt:  m.now().Add(ttl),
	}
	if err := m.refresh.CreateRefreshToken(ctx, row); err != nil {
		return nil, apperr.Internal("store refresh token", err)
	}

	pair, err := m.issueAccess(user.ID, row, tc)
	if err != nil {
		return nil, err
	}
	pair.RefreshToken = raw
	m.logger.Info("session started", zap.String("user_id", user.ID.String()), zap.String("session_id", row.ID.String()), zap.Bool("remember_me", opts.RememberMe))
	return &Session{Tokens: *pair, User: user, Tenant: tc}, nil
}

// Refresh exchanges a refresh token for a new access token carrying the
// user's current organization context. The refresh token itself is left
// untouched unless rotation is enabled.
func (m *SessionManager) Refresh(ctx context.Context, raw string) (*Session, error) {
	s, err := m.refreshSession(ctx, raw)
	obs.AuthResult("refresh", err)
	return s, err
}

func (m *SessionManager) refreshSession(ctx context.Context, raw string) (*Session, error) {
	if raw == "" {
		return nil, ErrSessionInvalid
	}
	row, err := m.refresh.GetRefreshTokenByHash(ctx, tokens.Hash(raw))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, apperr.Internal("load refresh token", err)
	}
	if row.Revoked {
		if m.cfg.RotateRefreshTokens && row.ReplacedBy != nil {
			n, err := m.refresh.RevokeUserRefreshTokens(ctx, row.UserID)
			if err != nil {
				return nil, apperr.Internal("revoke sessions", err)
			}
			m.logger.Warn("replaced refresh token presented, all sessions revoked",
				zap.String("user_id", row.UserID.String()), zap.Int64("revoked", n))
		}
		return nil, ErrSessionInvalid
	}
	if !m.now().Before(row.ExpiresAt) {
		return nil, ErrSessionInvalid
	}

	user, err := m.users.GetUserByID(ctx, row.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	if !user.CanAuthenticate() {
		return nil, ErrSessionInvalid
	}
	tc, err := m.resolver.Current(ctx, user)
	if err != nil {
		return nil, err
	}

	current := row
	var rotated string
	if m.cfg.RotateRefreshTokens {
		rotated, err = tokens.NewOpaque()
		if err != nil {
			return nil, apperr.Internal("generate refresh token", err)
		}
		next := &models.RefreshToken{
			ID:         uuid.New(),
			UserID:     row.UserID,
			TokenHash:  tokens.Hash(rotated),
			RememberMe: row.RememberMe,
			ExpiresAt:  row.ExpiresAt,
		}
		if err := m.refresh.ReplaceRefreshToken(ctx, row.ID, next); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, ErrSessionInvalid
			}
			return nil, apperr.Internal("rotate refresh token", err)
		}
		current = next
	}

	pair, err := m.issueAccess(user.ID, current, tc)
	if err != nil {
		return nil, err
	}
	pair.RefreshToken = rotated
	return &Session{Tokens: *pair, User: user, Tenant: tc}, nil
}

// Logout revokes the sessions selected by scope. Revoking an unknown or
// already revoked session is not an error.
func (m *SessionManager) Logout(ctx context.Context, userID uuid.UUID, scope RevocationScope) error {
	if scope.All() {
		_, err := m.RevokeAll(ctx, userID)
		return err
	}
	err := m.refresh.RevokeRefreshToken(ctx, userID, scope.sessionID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return apperr.Internal("revoke session", err)
	}
	return nil
}

// RevokeAll revokes every refresh token of the user.
func (m *SessionManager) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := m.refresh.RevokeUserRefreshTokens(ctx, userID)
	if err != nil {
		return 0, apperr.Internal("revoke sessions", err)
	}
	return n, nil
}

// Reissue mints an access token for an existing session with a new tenant context.
func (m *SessionManager) Reissue(userID, sessionID uuid.UUID, tc *tenant.Context) (string, time.Time, error) {
	g := AccessGrant{UserID: userID, SessionID: sessionID}
	if tc != nil {
		orgID := tc.OrganizationID
		g.OrganizationID = &orgID
		g.RoleName = tc.Role.Name
	}
	token, exp, err := m.jwt.Issue(g)
	if err != nil {
		return "", time.Time{}, apperr.Internal("issue access token", err)
	}
	return token, exp, nil
}

func (m *SessionManager) issueAccess(userID uuid.UUID, row *models.RefreshToken, tc *tenant.Context) (*TokenPair, error) {
	access, exp, err := m.Reissue(userID, row.ID, tc)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshExpiresAt: row.ExpiresAt,
		RememberMe:       row.RememberMe,
		SessionID:        row.ID,
	}, nil
}
