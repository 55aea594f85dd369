// Package memstore is an in-memory implementation of every store interface,
// used for local development (STORAGE_DRIVER=memory) and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamspace/backend/internal/models"
)

type memberKey struct {
	userID uuid.UUID
	orgID  uuid.UUID
}

type data struct {
	users       map[uuid.UUID]models.User
	refresh     map[uuid.UUID]models.RefreshToken
	orgs        map[uuid.UUID]models.Organization
	roles       map[uuid.UUID]models.Role
	permissions map[string]models.Permission
	rolePerms   map[uuid.UUID][]string
	members     map[memberKey]models.Membership
	secure      map[uuid.UUID]models.SecureToken
	emailLogs   []models.EmailLog
}

func newData() data {
	return data{
		users:       make(map[uuid.UUID]models.User),
		refresh:     make(map[uuid.UUID]models.RefreshToken),
		orgs:        make(map[uuid.UUID]models.Organization),
		roles:       make(map[uuid.UUID]models.Role),
		permissions: make(map[string]models.Permission),
		rolePerms:   make(map[uuid.UUID][]string),
		members:     make(map[memberKey]models.Membership),
		secure:      make(map[uuid.UUID]models.SecureToken),
	}
}

func (d data) clone() data {
	out := newData()
	for k, v := range d.users {
		out.users[k] = v
	}
	for k, v := range d.refresh {
		out.refresh[k] = v
	}
	for k, v := range d.orgs {
		out.orgs[k] = v
	}
	for k, v := range d.roles {
		out.roles[k] = v
	}
	for k, v := range d.permissions {
		out.permissions[k] = v
	}
	for k, v := range d.rolePerms {
		out.rolePerms[k] = append([]string(nil), v...)
	}
	for k, v := range d.members {
		out.members[k] = v
	}
	for k, v := range d.secure {
		out.secure[k] = v
	}
	out.emailLogs = append([]models.EmailLog(nil), d.emailLogs...)
	return out
}

// Store keeps all records in maps guarded by one mutex. Writes made outside a
// transaction wait for any open transaction to finish, so a rollback only
// discards the transaction's own changes.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data data
	now  func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{data: newData(), now: time.Now}
}

// RunInTx runs fn and restores the previous state if it fails. Calls made
// with the context passed to fn join the transaction; other writers block
// until it ends. Reads are not isolated from uncommitted changes.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

func (s *Store) read(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	return s.mu.RUnlock, nil
}

func (s *Store) write(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock, nil
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}, nil
}

func ptr[T any](v T) *T { return &v }
