// Package organizations manages organizations, their memberships and the
// two-step organization deletion workflow.
package organizations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/internal/notify"
	"github.com/teamspace/backend/internal/roles"
	"github.com/teamspace/backend/internal/securetoken"
	"github.com/teamspace/backend/pkg/apperr"
	"github.com/teamspace/backend/pkg/database"
	"github.com/teamspace/backend/pkg/utils"
)

var (
	ErrOrganizationNotFound = apperr.NotFound("organization not found")
	ErrMemberNotFound       = apperr.NotFound("member not found")
	ErrSlugTaken            = apperr.Conflict("an organization with this slug already exists")
	ErrInvalidSlug          = apperr.BadRequest("slug must be 2–64 chars, lowercase letters, numbers, hyphens only")
	ErrInvalidName          = apperr.BadRequest("name must be 1–255 characters")
	ErrInvalidStatus        = apperr.BadRequest("status must be active or suspended")
	ErrSelfModification     = apperr.BadRequest("you cannot suspend or remove yourself")
	ErrLastAdmin            = apperr.Conflict("the organization must keep at least one active admin")
	ErrNotAdmin             = apperr.Forbidden("only organization admins can delete an organization")
	ErrCurrentOrganization  = apperr.BadRequest("switch to another organization before deleting this one")
	ErrPhraseMismatch       = apperr.BadRequest("confirmation phrase does not match")
)

// Store persists organizations and memberships.
type Store interface {
	CreateOrganization(ctx context.Context, o *models.Organization) error
	GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	CreateMembership(ctx context.Context, m *models.Membership) error
	GetMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error)
	UpdateMembershipRole(ctx context.Context, userID, orgID, roleID uuid.UUID) error
	UpdateMembershipStatus(ctx context.Context, userID, orgID uuid.UUID, status models.MembershipStatus) error
	DeleteMembership(ctx context.Context, userID, orgID uuid.UUID) error
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Member, error)
	CountActiveMembersWithRole(ctx context.Context, orgID, roleID uuid.UUID) (int, error)
	// DeleteOrganizationCascade removes memberships, role-permission links,
	// roles and the organization, and clears it as anyone's current organization.
	DeleteOrganizationCascade(ctx context.Context, orgID uuid.UUID) error
}

// UserReader loads users.
type UserReader interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service implements organization operations.
type Service struct {
	store    Store
	users    UserReader
	roles    *roles.Service
	tokens   *securetoken.Manager
	notifier notify.Notifier
	tx       database.TxRunner
	logger   *zap.Logger
}

// NewService creates an organizations service.
func NewService(store Store, users UserReader, roleSvc *roles.Service, tokens *securetoken.Manager,
	notifier notify.Notifier, tx database.TxRunner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		users:    users,
		roles:    roleSvc,
		tokens:   tokens,
		notifier: notifier,
		tx:       tx,
		logger:   logger,
	}
}

// Create creates an organization with its system roles and makes the creator
// its admin. An empty slug is derived from the name.
func (s *Service) Create(ctx context.Context, creatorID uuid.UUID, name, slug string) (*models.Organization, error) {
	name = strings.TrimSpace(name)
	if len(name) < 1 || len(name) > 255 {
		return nil, ErrInvalidName
	}
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		slug = utils.Slugify(name)
	}
	if !utils.ValidSlug(slug) {
		return nil, ErrInvalidSlug
	}

	org := &models.Organization{Name: name, Slug: slug, CreatedBy: creatorID, IsActive: true}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateOrganization(ctx, org); err != nil {
			if errors.Is(err, database.ErrConflict) {
				return ErrSlugTaken
			}
			return apperr.Internal("create organization", err)
		}
		admin, _, err := s.roles.SeedSystemRoles(ctx, org.ID)
		if err != nil {
			return err
		}
		err = s.store.CreateMembership(ctx, &models.Membership{
			UserID:         creatorID,
			OrganizationID: org.ID,
			RoleID:         admin.ID,
			Status:         models.MembershipActive,
		})
		if err != nil {
			return apperr.Internal("create membership", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("organization created", zap.String("organization_id", org.ID.String()), zap.String("slug", org.Slug))
	return org, nil
}

// Get returns an available organization.
func (s *Service) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := s.store.GetOrganization(ctx, orgID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && !org.Available()) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, apperr.Internal("load organization", err)
	}
	return org, nil
}

// ListMembers returns every membership of orgID with user and role details.
func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Member, error) {
	list, err := s.store.ListMembers(ctx, orgID)
	if err != nil {
		return nil, apperr.Internal("list members", err)
	}
	if list == nil {
		list = []models.Member{}
	}
	return list, nil
}

// UpdateMemberRole gives userID the role roleID, which must belong to orgID.
func (s *Service) UpdateMemberRole(ctx context.Context, orgID, userID, roleID uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		m, err := s.member(ctx, userID, orgID)
		if err != nil {
			return err
		}
		role, err := s.roles.Get(ctx, orgID, roleID)
		if err != nil {
			return err
		}
		if m.RoleID == role.ID {
			return nil
		}
		if err := s.ensureAnotherAdmin(ctx, m); err != nil {
			return err
		}
		if err := s.store.UpdateMembershipRole(ctx, userID, orgID, role.ID); err != nil {
			return apperr.Internal("update member role", err)
		}
		return nil
	})
}

// UpdateMemberStatus activates or suspends a member. Suspension takes effect
// on the member's next request.
func (s *Service) UpdateMemberStatus(ctx context.Context, actorID, orgID, userID uuid.UUID, status models.MembershipStatus) error {
	if status != models.MembershipActive && status != models.MembershipSuspended {
		return ErrInvalidStatus
	}
	if actorID == userID {
		return ErrSelfModification
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		m, err := s.member(ctx, userID, orgID)
		if err != nil {
			return err
		}
		if m.Status == status {
			return nil
		}
		if status == models.MembershipSuspended {
			if err := s.ensureAnotherAdmin(ctx, m); err != nil {
				return err
			}
		}
		if err := s.store.UpdateMembershipStatus(ctx, userID, orgID, status); err != nil {
			return apperr.Internal("update member status", err)
		}
		return nil
	})
}

// RemoveMember deletes userID's membership.
func (s *Service) RemoveMember(ctx context.Context, actorID, orgID, userID uuid.UUID) error {
	if actorID == userID {
		return ErrSelfModification
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		m, err := s.member(ctx, userID, orgID)
		if err != nil {
			return err
		}
		if err := s.ensureAnotherAdmin(ctx, m); err != nil {
			return err
		}
		if err := s.store.DeleteMembership(ctx, userID, orgID); err != nil {
			return apperr.Internal("remove member", err)
		}
		return nil
	})
}

// DeletionRequest is the result of InitiateDeletion.
type DeletionRequest struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Email          string    `json:"email"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// InitiateDeletion starts deleting orgID. The actor must be its admin, must
// not have it selected as current organization and must type the
// confirmation phrase. A confirmation link is emailed to the actor.
func (s *Service) InitiateDeletion(ctx context.Context, actorID, orgID uuid.UUID, phrase string) (*DeletionRequest, error) {
	org, user, err := s.checkDeletion(ctx, actorID, orgID, phrase)
	if err != nil {
		return nil, err
	}
	raw, tok, err := s.tokens.Issue(ctx, securetoken.OrganizationDeletion, securetoken.Subject{
		UserID:         &user.ID,
		OrganizationID: &org.ID,
		Email:          user.Email,
		CreatedBy:      &user.ID,
	})
	if err != nil {
		return nil, err
	}
	err = s.notifier.SendDeletionConfirmation(ctx, notify.DeletionConfirmation{
		Email:            user.Email,
		Name:             user.FirstName,
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		Token:            raw,
		ExpiresAt:        tok.ExpiresAt,
	})
	if err != nil {
		s.logger.Warn("deletion confirmation email not sent",
			zap.String("organization_id", org.ID.String()), zap.Error(err))
	}
	return &DeletionRequest{OrganizationID: org.ID, Email: user.Email, ExpiresAt: tok.ExpiresAt}, nil
}

// ConfirmDeletion re-checks the initiation rules, consumes the confirmation
// token and deletes the organization with everything scoped to it.
func (s *Service) ConfirmDeletion(ctx context.Context, actorID, orgID uuid.UUID, raw, phrase string) error {
	org, _, err := s.checkDeletion(ctx, actorID, orgID, phrase)
	if err != nil {
		return err
	}
	_, err = s.tokens.Consume(ctx, models.PurposeOrganizationDeletion, raw, func(ctx context.Context, t *models.SecureToken) error {
		if t.OrganizationID == nil || *t.OrganizationID != org.ID || t.UserID == nil || *t.UserID != actorID {
			return securetoken.ErrNotFound
		}
		if err := s.store.DeleteOrganizationCascade(ctx, org.ID); err != nil {
			return apperr.Internal("delete organization", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("organization deleted",
		zap.String("organization_id", org.ID.String()), zap.String("deleted_by", actorID.String()))
	return nil
}

// DeletionPhrase is the text an admin must type to delete org.
func DeletionPhrase(orgName string) string {
	return fmt.Sprintf("delete my %s organization", orgName)
}

func (s *Service) checkDeletion(ctx context.Context, actorID, orgID uuid.UUID, phrase string) (*models.Organization, *models.User, error) {
	org, err := s.Get(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.store.GetMembership(ctx, actorID, orgID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, ErrNotAdmin
	}
	if err != nil {
		return nil, nil, apperr.Internal("load membership", err)
	}
	isAdmin, err := s.isAdminRole(ctx, m.OrganizationID, m.RoleID)
	if err != nil {
		return nil, nil, err
	}
	if m.Status != models.MembershipActive || !isAdmin {
		return nil, nil, ErrNotAdmin
	}
	user, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, nil, apperr.Internal("load user", err)
	}
	if user.CurrentOrganizationID != nil && *user.CurrentOrganizationID == orgID {
		return nil, nil, ErrCurrentOrganization
	}
	if !strings.EqualFold(strings.TrimSpace(phrase), DeletionPhrase(org.Name)) {
		return nil, nil, ErrPhraseMismatch
	}
	return org, user, nil
}

func (s *Service) member(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error) {
	m, err := s.store.GetMembership(ctx, userID, orgID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, apperr.Internal("load membership", err)
	}
	return m, nil
}

// ensureAnotherAdmin fails when m is the organization's last active admin.
func (s *Service) ensureAnotherAdmin(ctx context.Context, m *models.Membership) error {
	if m.Status != models.MembershipActive {
		return nil
	}
	isAdmin, err := s.isAdminRole(ctx, m.OrganizationID, m.RoleID)
	if err != nil || !isAdmin {
		return err
	}
	n, err := s.store.CountActiveMembersWithRole(ctx, m.OrganizationID, m.RoleID)
	if err != nil {
		return apperr.Internal("count admins", err)
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func (s *Service) isAdminRole(ctx context.Context, orgID, roleID uuid.UUID) (bool, error) {
	role, err := s.roles.Get(ctx, orgID, roleID)
	if err != nil {
		return false, err
	}
	return role.IsSystemRole && role.Slug == models.RoleSlugAdmin, nil
}
