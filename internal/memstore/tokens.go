package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/database"
)

func (s *Store) CreateSecureToken(ctx context.Context, t *models.SecureToken) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for _, existing := range s.data.secure {
		if existing.TokenHash == t.TokenHash {
			return database.ErrConflict
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.data.secure[t.ID] = *t
	return nil
}

func (s *Store) GetSecureTokenByHash(ctx context.Context, purpose models.SecureTokenPurpose, hash string) (*models.SecureToken, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, t := range s.data.secure {
		if t.Purpose == purpose && t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) GetSecureToken(ctx context.Context, id uuid.UUID) (*models.SecureToken, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	t, ok := s.data.secure[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &t, nil
}

func (s *Store) ClaimSecureToken(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.updatePending(ctx, id, func(t *models.SecureToken) { t.UsedAt = ptr(at) })
}

func (s *Store) RejectSecureToken(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.updatePending(ctx, id, func(t *models.SecureToken) { t.RejectedAt = ptr(at) })
}

func (s *Store) RotateSecureToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	return s.updatePending(ctx, id, func(t *models.SecureToken) {
		t.TokenHash = hash
		t.ExpiresAt = expiresAt
	})
}

func (s *Store) updatePending(ctx context.Context, id uuid.UUID, fn func(*models.SecureToken)) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	t, ok := s.data.secure[id]
	if !ok || !t.Pending() {
		return database.ErrNotFound
	}
	fn(&t)
	t.UpdatedAt = s.now()
	s.data.secure[id] = t
	return nil
}

func (s *Store) RejectPendingSecureTokens(ctx context.Context, purpose models.SecureTokenPurpose, userID uuid.UUID, orgID *uuid.UUID, at time.Time) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for id, t := range s.data.secure {
		if t.Purpose != purpose || !t.Pending() || t.UserID == nil || *t.UserID != userID {
			continue
		}
		if !sameOrg(t.OrganizationID, orgID) {
			continue
		}
		t.RejectedAt = ptr(at)
		t.UpdatedAt = at
		s.data.secure[id] = t
	}
	return nil
}

func (s *Store) FindPendingSecureToken(ctx context.Context, purpose models.SecureTokenPurpose, orgID uuid.UUID, email string, now time.Time) (*models.SecureToken, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, t := range s.data.secure {
		if t.Purpose == purpose && t.Pending() && t.ExpiresAt.After(now) &&
			sameOrg(t.OrganizationID, &orgID) && strings.EqualFold(t.Email, email) {
			return &t, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) ListPendingSecureTokens(ctx context.Context, purpose models.SecureTokenPurpose, orgID uuid.UUID, now time.Time) ([]models.SecureToken, error) {
	unlock, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var list []models.SecureToken
	for _, t := range s.data.secure {
		if t.Purpose == purpose && t.Pending() && t.ExpiresAt.After(now) && sameOrg(t.OrganizationID, &orgID) {
			list = append(list, t)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (s *Store) DeleteExpiredSecureTokens(ctx context.Context, before time.Time) (int64, error) {
	unlock, err := s.write(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for id, t := range s.data.secure {
		if t.ExpiresAt.Before(before) {
			delete(s.data.secure, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateEmailLog(ctx context.Context, l *models.EmailLog) error {
	unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = s.now()
	s.data.emailLogs = append(s.data.emailLogs, *l)
	return nil
}

// EmailLogs returns a copy of all recorded delivery attempts.
func (s *Store) EmailLogs() []models.EmailLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.EmailLog(nil), s.data.emailLogs...)
}

func sameOrg(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
