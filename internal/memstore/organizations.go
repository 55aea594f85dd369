package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/database"
)

func (s *Store) CreateOrganization(ctx context.Context, o *models.Organization) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for _, existing := range s.data.orgs {
		if existing.Slug == o.Slug {
			return database.ErrConflict
		}
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	s.data.orgs[o.ID] = *o
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	o, ok := s.data.orgs[orgID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &o, nil
}

func (s *Store) GetMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	m, ok := s.data.members[memberKey{userID, orgID}]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &m, nil
}

func (s *Store) CreateMembership(ctx context.Context, m *models.Membership) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	key := memberKey{m.UserID, m.OrganizationID}
	if _, ok := s.data.members[key]; ok {
		return database.ErrConflict
	}
	now := s.now()
	m.JoinedAt, m.UpdatedAt = now, now
	s.data.members[key] = *m
	return nil
}

func (s *Store) UpdateMembershipRole(ctx context.Context, userID, orgID, roleID uuid.UUID) error {
	return s.updateMember(ctx, userID, orgID, func(m *models.Membership) { m.RoleID = roleID })
}

func (s *Store) UpdateMembershipStatus(ctx context.Context, userID, orgID uuid.UUID, status models.MembershipStatus) error {
	return s.updateMember(ctx, userID, orgID, func(m *models.Membership) { m.Status = status })
}

func (s *Store) updateMember(ctx context.Context, userID, orgID uuid.UUID, fn func(*models.Membership)) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	key := memberKey{userID, orgID}
	m, ok := s.data.members[key]
	if !ok {
		return database.ErrNotFound
	}
	fn(&m)
	m.UpdatedAt = s.now()
	s.data.members[key] = m
	return nil
}

func (s *Store) DeleteMembership(ctx context.Context, userID, orgID uuid.UUID) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	key := memberKey{userID, orgID}
	if _, ok := s.data.members[key]; !ok {
		return database.ErrNotFound
	}
	delete(s.data.members, key)
	return nil
}

func (s *Store) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Member, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var list []models.Member
	for key, m := range s.data.members {
		if key.orgID != orgID {
			continue
		}
		u := s.data.users[m.UserID]
		r := s.data.roles[m.RoleID]
		list = append(list, models.Member{
			UserID:    m.UserID,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			RoleID:    r.ID,
			RoleName:  r.Name,
			RoleSlug:  r.Slug,
			Status:    m.Status,
			JoinedAt:  m.JoinedAt,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Email < list[j].Email })
	return list, nil
}

func (s *Store) CountActiveMembersWithRole(ctx context.Context, orgID, roleID uuid.UUID) (int, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	n := 0
	for key, m := range s.data.members {
		if key.orgID == orgID && m.RoleID == roleID && m.Status == models.MembershipActive {
			n++
		}
	}
	return n, nil
}

// DeleteOrganizationCascade removes memberships, role-permission links, roles,
// secure tokens and the organization, and clears it as anyone's current organization.
func (s *Store) DeleteOrganizationCascade(ctx context.Context, orgID uuid.UUID) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.data.orgs[orgID]; !ok {
		return database.ErrNotFound
	}
	for key := range s.data.members {
		if key.orgID == orgID {
			delete(s.data.members, key)
		}
	}
	for id, r := range s.data.roles {
		if r.OrganizationID == orgID {
			delete(s.data.rolePerms, id)
			delete(s.data.roles, id)
		}
	}
	for id, t := range s.data.secure {
		if t.OrganizationID != nil && *t.OrganizationID == orgID {
			delete(s.data.secure, id)
		}
	}
	for id, u := range s.data.users {
		if u.CurrentOrganizationID != nil && *u.CurrentOrganizationID == orgID {
			u.CurrentOrganizationID = nil
			s.data.users[id] = u
		}
	}
	delete(s.data.orgs, orgID)
	return nil
}

func (s *Store) ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]models.UserOrganization, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var list []models.UserOrganization
	for key, m := range s.data.members {
		if key.userID != userID {
			continue
		}
		o, ok := s.data.orgs[key.orgID]
		if !ok || !o.Available() {
			continue
		}
		r := s.data.roles[m.RoleID]
		list = append(list, models.UserOrganization{
			OrganizationID:   o.ID,
			OrganizationName: o.Name,
			OrganizationSlug: o.Slug,
			RoleID:           r.ID,
			RoleName:         r.Name,
			RoleSlug:         r.Slug,
			Status:           m.Status,
			JoinedAt:         m.JoinedAt,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].OrganizationName < list[j].OrganizationName })
	return list, nil
}

func (s *Store) ListMemberPermissionSlugs(ctx context.Context, userID, orgID uuid.UUID) ([]string, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	m, ok := s.data.members[memberKey{userID, orgID}]
	if !ok || m.Status != models.MembershipActive {
		return nil, database.ErrNotFound
	}
	if o, ok := s.data.orgs[orgID]; !ok || !o.Available() {
		return nil, database.ErrNotFound
	}
	return append([]string{}, s.data.rolePerms[m.RoleID]...), nil
}
