// Package invitations invites people into organizations by email.
package invitations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamspace/backend/internal/auth"
	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/notify"
	"github.com/teamspace/backend/internal/roles"
	"github.com/teamspace/backend/internal/securetoken"
	"github.com/teamspace/backend/pkg/apperr"
	"github.com/teamspace/backend/pkg/database"
)

var (
	ErrInvitationNotFound = apperr.NotFound("invitation not found")
	ErrAlreadyMember      = apperr.Conflict("this user is already a member of the organization")
	ErrAlreadyInvited     = apperr.Conflict("an invitation is already pending for this email")
	ErrDetailsRequired    = apperr.BadRequest("first_name, last_name and password are required to create an account")
	ErrAccountDisabled    = apperr.Forbidden("this account is disabled")
)

// Store reads organizations and writes memberships.
type Store interface {
	GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	GetMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error)
	CreateMembership(ctx context.Context, m *models.Membership) error
}

// UserStore reads and creates users.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// Invitation is the API view of a pending invitation.
type Invitation struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Email          string     `json:"email"`
	RoleID         uuid.UUID  `json:"role_id"`
	RoleName       string     `json:"role_name"`
	InvitedBy      *uuid.UUID `json:"invited_by,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// AcceptInput is the input of Accept. Names and password are only used when
// the invited email has no account yet.
type AcceptInput struct {
	Token      string
	FirstName  string
	LastName   string
	Password   string
	RememberMe bool
}

// Service implements the invitation workflow.
type Service struct {
	store    Store
	users    UserStore
	roles    *roles.Service
	tokens   *securetoken.Manager
	sessions *auth.SessionManager
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewService creates an invitations service.
func NewService(store Store, users UserStore, roleSvc *roles.Service, tokens *securetoken.Manager,
	sessions *auth.SessionManager, notifier notify.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		users:    users,
		roles:    roleSvc,
		tokens:   tokens,
		sessions: sessions,
		notifier: notifier,
		logger:   logger,
	}
}

// Invite emails an invitation to join orgID with roleID.
func (s *Service) Invite(ctx context.Context, inviterID, orgID uuid.UUID, email string, roleID uuid.UUID) (*Invitation, error) {
	email, err := auth.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	org, err := s.organization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.Get(ctx, orgID, roleID)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		_, err := s.store.GetMembership(ctx, existing.ID, orgID)
		if err == nil {
			return nil, ErrAlreadyMember
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, apperr.Internal("load membership", err)
		}
	case !errors.Is(err, database.ErrNotFound):
		return nil, apperr.Internal("load user", err)
	}

	pending, err := s.tokens.FindPending(ctx, models.PurposeInvitation, orgID, email)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, ErrAlreadyInvited
	}

	raw, tok, err := s.tokens.Issue(ctx, securetoken.Invitation, securetoken.Subject{
		OrganizationID: &org.ID,
		RoleID:         &role.ID,
		Email:          email,
		CreatedBy:      &inviterID,
	})
	if err != nil {
		return nil, err
	}
	s.send(ctx, org, role.Name, inviterID, tok, raw)
	inv := view(tok, role.Name)
	return &inv, nil
}

// ListPending lists the organization's live invitations.
func (s *Service) ListPending(ctx context.Context, orgID uuid.UUID) ([]Invitation, error) {
	list, err := s.tokens.ListPending(ctx, models.PurposeInvitation, orgID)
	if err != nil {
		return nil, err
	}
	roleList, err := s.roles.ListRoles(ctx, orgID)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(roleList))
	for _, r := range roleList {
		names[r.ID] = r.Name
	}
	out := make([]Invitation, 0, len(list))
	for i := range list {
		name := ""
		if list[i].RoleID != nil {
			name = names[*list[i].RoleID]
		}
		out = append(out, view(&list[i], name))
	}
	return out, nil
}

// Resend issues a new secret and expiry for a pending invitation and emails it again.
func (s *Service) Resend(ctx context.Context, actorID, orgID, invitationID uuid.UUID) (*Invitation, error) {
	if _, err := s.invitation(ctx, orgID, invitationID); err != nil {
		return nil, err
	}
	org, err := s.organization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	raw, tok, err := s.tokens.Rotate(ctx, securetoken.Invitation, invitationID)
	if err != nil {
		return nil, err
	}
	roleName := ""
	if tok.RoleID != nil {
		if role, err := s.roles.Get(ctx, orgID, *tok.RoleID); err == nil {
			roleName = role.Name
		}
	}
	s.send(ctx, org, roleName, actorID, tok, raw)
	inv := view(tok, roleName)
	return &inv, nil
}

// Revoke cancels a pending invitation.
func (s *Service) Revoke(ctx context.Context, orgID, invitationID uuid.UUID) error {
	if _, err := s.invitation(ctx, orgID, invitationID); err != nil {
		return err
	}
	return s.tokens.Reject(ctx, invitationID)
}

// Accept consumes an invitation. The invited email's account is created when
// missing, the membership is added, and a session scoped to the organization
// is started.
func (s *Service) Accept(ctx context.Context, in AcceptInput) (*auth.Session, error) {
	var user *models.User
	tok, err := s.tokens.Consume(ctx, models.PurposeInvitation, in.Token, func(ctx context.Context, t *models.SecureToken) error {
		if t.OrganizationID == nil || t.RoleID == nil {
			return securetoken.ErrNotFound
		}
		if _, err := s.organization(ctx, *t.OrganizationID); err != nil {
			return err
		}
		if _, err := s.roles.Get(ctx, *t.OrganizationID, *t.RoleID); err != nil {
			return err
		}
		u, err := s.userForInvitation(ctx, t.Email, in)
		if err != nil {
			return err
		}
		err = s.store.CreateMembership(ctx, &models.Membership{
			UserID:         u.ID,
			OrganizationID: *t.OrganizationID,
			RoleID:         *t.RoleID,
			Status:         models.MembershipActive,
		})
		if errors.Is(err, database.ErrConflict) {
			return ErrAlreadyMember
		}
		if err != nil {
			return apperr.Internal("create membership", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invitation accepted",
		zap.String("invitation_id", tok.ID.String()),
		zap.String("organization_id", tok.OrganizationID.String()),
		zap.String("user_id", user.ID.String()))
	return s.sessions.Login(ctx, user, auth.LoginOptions{RememberMe: in.RememberMe, OrganizationID: tok.OrganizationID})
}

func (s *Service) userForInvitation(ctx context.Context, email string, in AcceptInput) (*models.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		if !u.CanAuthenticate() {
			return nil, ErrAccountDisabled
		}
		return u, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Internal("load user", err)
	}

	first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if first == "" || last == "" || in.Password == "" {
		return nil, ErrDetailsRequired
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u = &models.User{
		Email:        email,
		PasswordHash: &hash,
		FirstName:    first,
		LastName:     last,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, auth.ErrRegistrationFailed
		}
		return nil, apperr.Internal("create user", err)
	}
	return u, nil
}

func (s *Service) invitation(ctx context.Context, orgID, id uuid.UUID) (*models.SecureToken, error) {
	t, err := s.tokens.Get(ctx, id)
	if errors.Is(err, securetoken.ErrNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Purpose != models.PurposeInvitation || t.OrganizationID == nil || *t.OrganizationID != orgID {
		return nil, ErrInvitationNotFound
	}
	return t, nil
}

func (s *Service) organization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := s.store.GetOrganization(ctx, orgID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && !org.Available()) {
		return nil, apperr.NotFound("organization not found")
	}
	if err != nil {
		return nil, apperr.Internal("load organization", err)
	}
	return org, nil
}

func (s *Service) send(ctx context.Context, org *models.Organization, roleName string, inviterID uuid.UUID, tok *models.SecureToken, raw string) {
	inviterName := ""
	if inviter, err := s.users.GetUserByID(ctx, inviterID); err == nil {
		inviterName = inviter.FullName()
	}
	err := s.notifier.SendInvitation(ctx, notify.Invitation{
		Email:            tok.Email,
		OrganizationName: org.Name,
		RoleName:         roleName,
		InviterName:      inviterName,
		Token:            raw,
		ExpiresAt:        tok.ExpiresAt,
	})
	if err != nil {
		s.logger.Warn("invitation email not sent",
			zap.String("invitation_id", tok.ID.String()), zap.Error(err))
	}
}

func view(t *models.SecureToken, roleName string) Invitation {
	inv := Invitation{
		ID:        t.ID,
		Email:     t.Email,
		RoleName:  roleName,
		InvitedBy: t.CreatedBy,
		ExpiresAt: t.ExpiresAt,
		CreatedAt: t.CreatedAt,
	}
	if t.OrganizationID != nil {
		inv.OrganizationID = *t.OrganizationID
	}
	if t.RoleID != nil {
		inv.RoleID = *t.RoleID
	}
	return inv
}
