package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/database"
)

func (s *Store) CreateRole(ctx context.Context, r *models.Role) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for _, existing := range s.data.roles {
		if existing.OrganizationID == r.OrganizationID && existing.Slug == r.Slug {
			return database.ErrConflict
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	s.data.roles[r.ID] = *r
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID uuid.UUID) (*models.Role, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	r, ok := s.data.roles[roleID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &r, nil
}

func (s *Store) GetRoleBySlug(ctx context.Context, orgID uuid.UUID, slug string) (*models.Role, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, r := range s.data.roles {
		if r.OrganizationID == orgID && r.Slug == slug {
			return &r, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) ListRoles(ctx context.Context, orgID uuid.UUID) ([]models.RoleDetail, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var list []models.RoleDetail
	for _, r := range s.data.roles {
		if r.OrganizationID != orgID {
			continue
		}
		count := 0
		for _, m := range s.data.members {
			if m.RoleID == r.ID {
				count++
			}
		}
		perms := append([]string{}, s.data.rolePerms[r.ID]...)
		sort.Strings(perms)
		list = append(list, models.RoleDetail{Role: r, Permissions: perms, MemberCount: count})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (s *Store) UpdateRole(ctx context.Context, r *models.Role) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	cur, ok := s.data.roles[r.ID]
	if !ok {
		return database.ErrNotFound
	}
	for id, existing := range s.data.roles {
		if id != r.ID && existing.OrganizationID == cur.OrganizationID && existing.Slug == r.Slug {
			return database.ErrConflict
		}
	}
	cur.Name, cur.Slug, cur.Description = r.Name, r.Slug, r.Description
	cur.UpdatedAt = s.now()
	s.data.roles[r.ID] = cur
	*r = cur
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID uuid.UUID) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.data.roles[roleID]; !ok {
		return database.ErrNotFound
	}
	delete(s.data.rolePerms, roleID)
	delete(s.data.roles, roleID)
	return nil
}

func (s *Store) CountRoleMembers(ctx context.Context, roleID uuid.UUID) (int, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	n := 0
	for _, m := range s.data.members {
		if m.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListRolePermissionSlugs(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return append([]string{}, s.data.rolePerms[roleID]...), nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID uuid.UUID, slugs []string) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.data.roles[roleID]; !ok {
		return database.ErrNotFound
	}
	for _, slug := range slugs {
		if _, ok := s.data.permissions[slug]; !ok {
			return database.ErrNotFound
		}
	}
	s.data.rolePerms[roleID] = append([]string{}, slugs...)
	return nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	list := make([]models.Permission, 0, len(s.data.permissions))
	for _, p := range s.data.permissions {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Slug < list[j].Slug })
	return list, nil
}

func (s *Store) UpsertPermission(ctx context.Context, p *models.Permission) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if existing, ok := s.data.permissions[p.Slug]; ok {
		p.ID = existing.ID
	} else if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.data.permissions[p.Slug] = *p
	return nil
}
