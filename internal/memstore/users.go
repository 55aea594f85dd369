package memstore

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/database"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for _, existing := range s.data.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return database.ErrConflict
		}
		if u.OAuthProviderID != "" && existing.OAuthProvider == u.OAuthProvider && existing.OAuthProviderID == u.OAuthProviderID {
			return database.ErrConflict
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.data.users[u.ID] = *u
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	u, ok := s.data.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, u := range s.data.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) GetUserByOAuth(ctx context.Context, provider, providerID string) (*models.User, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, u := range s.data.users {
		if u.OAuthProvider == provider && u.OAuthProviderID == providerID && providerID != "" {
			return &u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) UpdateUserProfile(ctx context.Context, u *models.User) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	cur, ok := s.data.users[u.ID]
	if !ok {
		return database.ErrNotFound
	}
	cur.FirstName = u.FirstName
	cur.LastName = u.LastName
	cur.AvatarURL = u.AvatarURL
	cur.OAuthProvider = u.OAuthProvider
	cur.OAuthProviderID = u.OAuthProviderID
	cur.UpdatedAt = s.now()
	s.data.users[u.ID] = cur
	u.UpdatedAt = cur.UpdatedAt
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id uuid.UUID, hash string) error {
	return s.updateUser(ctx, id, func(u *models.User) { u.PasswordHash = ptr(hash) })
}

func (s *Store) SetCurrentOrganization(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) error {
	return s.updateUser(ctx, userID, func(u *models.User) {
		if orgID == nil {
			u.CurrentOrganizationID = nil
			return
		}
		u.CurrentOrganizationID = ptr(*orgID)
	})
}

// DeactivateUser marks a user inactive. Used by tests and administrative tooling.
func (s *Store) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	return s.updateUser(ctx, id, func(u *models.User) { u.IsActive = false })
}

func (s *Store) updateUser(ctx context.Context, id uuid.UUID, fn func(*models.User)) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	u, ok := s.data.users[id]
	if !ok {
		return database.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = s.now()
	s.data.users[id] = u
	return nil
}

func (s *Store) CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return s.insertRefreshLocked(t)
}

func (s *Store) insertRefreshLocked(t *models.RefreshToken) error {
	for _, existing := range s.data.refresh {
		if existing.TokenHash == t.TokenHash {
			return database.ErrConflict
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = s.now()
	s.data.refresh[t.ID] = *t
	return nil
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, t := range s.data.refresh {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) RevokeRefreshToken(ctx context.Context, userID, id uuid.UUID) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	t, ok := s.data.refresh[id]
	if !ok || t.UserID != userID {
		return database.ErrNotFound
	}
	t.Revoked = true
	s.data.refresh[id] = t
	return nil
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID) (int64, error) {
	unlock, err := s.write(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for id, t := range s.data.refresh {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			s.data.refresh[id] = t
			n++
		}
	}
	return n, nil
}

func (s *Store) ReplaceRefreshToken(ctx context.Context, oldID uuid.UUID, next *models.RefreshToken) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	old, ok := s.data.refresh[oldID]
	if !ok || old.Revoked {
		return database.ErrNotFound
	}
	if err := s.insertRefreshLocked(next); err != nil {
		return err
	}
	old.Revoked = true
	old.ReplacedBy = ptr(next.ID)
	s.data.refresh[oldID] = old
	return nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	unlock, err := s.write(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for id, t := range s.data.refresh {
		if t.ExpiresAt.Before(before) {
			delete(s.data.refresh, id)
			n++
		}
	}
	return n, nil
}
