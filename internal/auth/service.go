package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/notify"
	"github.com/teamspace/backend/internal/obs"
	"github.com/teamspace/backend/internal/securetoken"
	"github.com/teamspace/backend/internal/tenant"
	"github.com/teamspace/backend/pkg/apperr"
	"github.com/teamspace/backend/pkg/database"
)

var (
	ErrInvalidCredentials = apperr.Unauthorized("invalid email or password")
	ErrRegistrationFailed = apperr.Conflict("unable to register with the provided details")
	ErrWrongPassword      = apperr.BadRequest("current password is incorrect")
)

// OrganizationCreator creates an organization with its creator as admin.
type OrganizationCreator interface {
	Create(ctx context.Context, creatorID uuid.UUID, name, slug string) (*models.Organization, error)
}

// RegisterInput is a new account request.
type RegisterInput struct {
	Email            string
	Password         string
	FirstName        string
	LastName         string
	OrganizationName string
	RememberMe       bool
}

// Profile is the authenticated user's view of themselves.
type Profile struct {
	User                models.UserPublic         `json:"user"`
	Organizations       []models.UserOrganization `json:"organizations"`
	CurrentOrganization *tenant.Context           `json:"current_organization,omitempty"`
}

// Selection is the result of switching organization.
type Selection struct {
	AccessToken     string
	AccessExpiresAt time.Time
	Tenant          *tenant.Context
}

// Service orchestrates registration, login and password flows.
type Service struct {
	users    UserStore
	sessions *SessionManager
	resolver *tenant.Resolver
	tokens   *securetoken.Manager
	orgs     OrganizationCreator
	notifier notify.Notifier
	tx       database.TxRunner
	logger   *zap.Logger
}

// NewService creates an auth service.
func NewService(users UserStore, sessions *SessionManager, resolver *tenant.Resolver, tokens *securetoken.Manager,
	orgs OrganizationCreator, notifier notify.Notifier, tx database.TxRunner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		resolver: resolver,
		tokens:   tokens,
		orgs:     orgs,
		notifier: notifier,
		tx:       tx,
		logger:   logger,
	}
}

// Sessions exposes the session manager.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// Register creates an account, optionally with a new organization it administers, and logs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	session, err := s.register(ctx, in)
	obs.AuthResult("register", err)
	return session, err
}

func (s *Service) register(ctx context.Context, in RegisterInput) (*Session, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if first == "" || last == "" {
		return nil, apperr.BadRequest("first name and last name are required")
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: &hash,
		FirstName:    first,
		LastName:     last,
		IsActive:     true,
	}
	var orgID *uuid.UUID
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.users.CreateUser(ctx, user); err != nil {
			if errors.Is(err, database.ErrConflict) {
				return ErrRegistrationFailed
			}
			return apperr.Internal("create user", err)
		}
		if name := strings.TrimSpace(in.OrganizationName); name != "" {
			org, err := s.orgs.Create(ctx, user.ID, name, "")
			if err != nil {
				return err
			}
			orgID = &org.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID.String()), zap.Bool("with_organization", orgID != nil))
	return s.sessions.Login(ctx, user, LoginOptions{RememberMe: in.RememberMe, OrganizationID: orgID})
}

// Login verifies an email and password and starts a session. Every failure
// returns ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (*Session, error) {
	session, err := s.login(ctx, email, password, rememberMe)
	obs.AuthResult("login", err)
	return session, err
}

func (s *Service) login(ctx context.Context, email, password string, rememberMe bool) (*Session, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		CheckPassword(password, nil)
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetUserByEmail(ctx, normalized)
	if errors.Is(err, database.ErrNotFound) {
		CheckPassword(password, nil)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	if !CheckPassword(password, user.PasswordHash) || !user.CanAuthenticate() {
		return nil, ErrInvalidCredentials
	}
	return s.sessions.Login(ctx, user, LoginOptions{RememberMe: rememberMe})
}

// LoginOAuth signs in with an external identity, linking it to an existing
// account with the same email or creating a password-less account.
func (s *Service) LoginOAuth(ctx context.Context, profile OAuthProfile, rememberMe bool) (*Session, error) {
	session, err := s.loginOAuth(ctx, profile, rememberMe)
	obs.AuthResult("oauth_login", err)
	return session, err
}

func (s *Service) loginOAuth(ctx context.Context, profile OAuthProfile, rememberMe bool) (*Session, error) {
	p, err := profile.Normalize()
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByOAuth(ctx, p.Provider, p.ProviderID)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrNotFound):
		user, err = s.linkOrCreate(ctx, p)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Internal("load user", err)
	}
	if !user.CanAuthenticate() {
		return nil, ErrInvalidCredentials
	}
	return s.sessions.Login(ctx, user, LoginOptions{RememberMe: rememberMe})
}

func (s *Service) linkOrCreate(ctx context.Context, p OAuthProfile) (*models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, p.Email)
	if err == nil {
		user.OAuthProvider = p.Provider
		user.OAuthProviderID = p.ProviderID
		if user.AvatarURL == "" {
			user.AvatarURL = p.PhotoURL
		}
		if err := s.users.UpdateUserProfile(ctx, user); err != nil {
			return nil, apperr.Internal("link oauth identity", err)
		}
		s.logger.Info("oauth identity linked", zap.String("user_id", user.ID.String()), zap.String("provider", p.Provider))
		return user, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Internal("load user", err)
	}
	user = &models.User{
		Email:           p.Email,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		AvatarURL:       p.PhotoURL,
		OAuthProvider:   p.Provider,
		OAuthProviderID: p.ProviderID,
		IsActive:        true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, ErrRegistrationFailed
		}
		return nil, apperr.Internal("create user", err)
	}
	s.logger.Info("user registered via oauth", zap.String("user_id", user.ID.String()), zap.String("provider", p.Provider))
	return user, nil
}

// Me returns the user's profile, organizations and the context of orgID, or
// of the stored current organization when orgID is nil.
func (s *Service) Me(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) (*Profile, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	orgs, err := s.resolver.Organizations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if orgID == nil {
		orgID = user.CurrentOrganizationID
	}
	var current *tenant.Context
	if orgID != nil {
		current, err = s.resolver.Resolve(ctx, userID, *orgID, true)
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindForbidden, apperr.KindNotFound:
				current = nil
			default:
				return nil, err
			}
		}
	}
	return &Profile{User: user.ToPublic(), Organizations: orgs, CurrentOrganization: current}, nil
}

// Organizations lists the user's organizations.
func (s *Service) Organizations(ctx context.Context, userID uuid.UUID) ([]models.UserOrganization, error) {
	return s.resolver.Organizations(ctx, userID)
}

// UpdateProfile changes the user's name.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, firstName, lastName string) (*models.User, error) {
	first, last := strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if first == "" || last == "" {
		return nil, apperr.BadRequest("first name and last name are required")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.FirstName, user.LastName = first, last
	if err := s.users.UpdateUserProfile(ctx, user); err != nil {
		return nil, apperr.Internal("update profile", err)
	}
	return user, nil
}

// ChangePassword replaces the password, revokes every session and starts a fresh one.
// Accounts without a password (OAuth only) may set one without a current password.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) (*Session, error) {
	if err := ValidatePassword(next); err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.PasswordHash != nil && !CheckPassword(current, user.PasswordHash) {
		return nil, ErrWrongPassword
	}
	hash, err := HashPassword(next)
	if err != nil {
		return nil, err
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.users.UpdateUserPassword(ctx, userID, hash); err != nil {
			return apperr.Internal("update password", err)
		}
		_, err := s.sessions.RevokeAll(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	user.PasswordHash = &hash
	s.notifyPasswordChanged(ctx, user)
	return s.sessions.Login(ctx, user, LoginOptions{})
}

// SelectOrganization validates membership in orgID, stores it as the current
// organization and mints an access token for the same session carrying it.
func (s *Service) SelectOrganization(ctx context.Context, userID, sessionID, orgID uuid.UUID) (*Selection, error) {
	tc, err := s.resolver.Resolve(ctx, userID, orgID, true)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetCurrentOrganization(ctx, userID, &orgID); err != nil {
		return nil, apperr.Internal("set current organization", err)
	}
	token, exp, err := s.sessions.Reissue(userID, sessionID, tc)
	if err != nil {
		return nil, err
	}
	return &Selection{AccessToken: token, AccessExpiresAt: exp, Tenant: tc}, nil
}

// ForgotPassword issues a reset token and emails it when the account exists.
// It reports success either way.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	user, err := s.users.GetUserByEmail(ctx, normalized)
	if errors.Is(err, database.ErrNotFound) {
		obs.AuthEvent("password_reset_request", "unknown")
		return nil
	}
	if err != nil {
		return apperr.Internal("load user", err)
	}
	if !user.CanAuthenticate() {
		obs.AuthEvent("password_reset_request", "unknown")
		return nil
	}
	raw, tok, err := s.tokens.Issue(ctx, securetoken.PasswordReset, securetoken.Subject{UserID: &user.ID, Email: user.Email})
	if err != nil {
		return err
	}
	obs.AuthEvent("password_reset_request", "issued")
	err = s.notifier.SendPasswordReset(ctx, notify.PasswordReset{
		Email:     user.Email,
		Name:      user.FirstName,
		Token:     raw,
		ExpiresAt: tok.ExpiresAt,
	})
	if err != nil {
		s.logger.Warn("password reset email not sent", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	return nil
}

// VerifyResetToken checks that a reset token is usable without consuming it.
func (s *Service) VerifyResetToken(ctx context.Context, raw string) error {
	_, err := s.tokens.Inspect(ctx, models.PurposePasswordReset, raw)
	return err
}

// ResetPassword consumes a reset token, sets the new password and revokes
// every refresh token of the user in one transaction.
func (s *Service) ResetPassword(ctx context.Context, raw, password string) error {
	err := s.resetPassword(ctx, raw, password)
	obs.AuthResult("password_reset", err)
	return err
}

func (s *Service) resetPassword(ctx context.Context, raw, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	tok, err := s.tokens.Consume(ctx, models.PurposePasswordReset, raw, func(ctx context.Context, t *models.SecureToken) error {
		if t.UserID == nil {
			return apperr.Internal("reset token has no user", nil)
		}
		if err := s.users.UpdateUserPassword(ctx, *t.UserID, hash); err != nil {
			return apperr.Internal("update password", err)
		}
		_, err := s.sessions.RevokeAll(ctx, *t.UserID)
		return err
	})
	if err != nil {
		return err
	}
	user, err := s.users.GetUserByID(ctx, *tok.UserID)
	if err != nil {
		s.logger.Warn("password reset notice skipped", zap.Error(err))
		return nil
	}
	s.notifyPasswordChanged(ctx, user)
	return nil
}

func (s *Service) notifyPasswordChanged(ctx context.Context, user *models.User) {
	err := s.notifier.SendPasswordChanged(ctx, notify.PasswordChanged{Email: user.Email, Name: user.FirstName})
	if err != nil {
		s.logger.Warn("password changed email not sent", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
}

func (s *Service) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Unauthorized("account no longer exists")
	}
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	if !user.CanAuthenticate() {
		return nil, apperr.Unauthorized("account is disabled")
	}
	return user, nil
}
