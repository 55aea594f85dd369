package securetoken

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamspace/backend/internal/memstore"
	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/apperr"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(t *testing.T) (*Manager, *clock) {
	t.Helper()
	store := memstore.New()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewManager(store, store).WithClock(clk.Now), clk
}

func TestIssueAndInspect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t)
	userID := uuid.New()

	raw, tok, err := m.Issue(ctx, PasswordReset, Subject{UserID: &userID})
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.NotEqual(t, raw, tok.TokenHash)

	got, err := m.Inspect(ctx, models.PurposePasswordReset, raw)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
}

func TestInspectErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()

	tests := []struct {
		name    string
		prepare func(m *Manager, clk *clock, raw string)
		purpose models.SecureTokenPurpose
		raw     func(raw string) string
		want    error
	}{
		{
			name:    "unknown token",
			purpose: models.PurposePasswordReset,
			raw:     func(string) string { return "deadbeef" },
			want:    ErrNotFound,
		},
		{
			name:    "token for another purpose",
			purpose: models.PurposeInvitation,
			want:    ErrNotFound,
		},
		{
			name:    "expired",
			purpose: models.PurposePasswordReset,
			prepare: func(_ *Manager, clk *clock, _ string) { clk.Advance(time.Hour) },
			want:    ErrExpired,
		},
		{
			name:    "already used",
			purpose: models.PurposePasswordReset,
			prepare: func(m *Manager, _ *clock, raw string) {
				_, err := m.Consume(context.Background(), models.PurposePasswordReset, raw, nil)
				if err != nil {
					panic(err)
				}
			},
			want: ErrUsed,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, clk := newManager(t)
			raw, _, err := m.Issue(ctx, PasswordReset, Subject{UserID: &userID})
			require.NoError(t, err)
			if tt.prepare != nil {
				tt.prepare(m, clk, raw)
			}
			if tt.raw != nil {
				raw = tt.raw(raw)
			}
			_, err = m.Inspect(ctx, tt.purpose, raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConsumeRollsBackClaimWhenEffectFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t)
	userID := uuid.New()
	raw, _, err := m.Issue(ctx, PasswordReset, Subject{UserID: &userID})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = m.Consume(ctx, models.PurposePasswordReset, raw, func(context.Context, *models.SecureToken) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.Inspect(ctx, models.PurposePasswordReset, raw)
	assert.NoError(t, err, "failed effect must leave the token usable")

	calls := 0
	_, err = m.Consume(ctx, models.PurposePasswordReset, raw, func(context.Context, *models.SecureToken) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = m.Consume(ctx, models.PurposePasswordReset, raw, nil)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestSingleOutstandingRejectsEarlierTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t)
	userID := uuid.New()

	first, _, err := m.Issue(ctx, PasswordReset, Subject{UserID: &userID})
	require.NoError(t, err)
	second, _, err := m.Issue(ctx, PasswordReset, Subject{UserID: &userID})
	require.NoError(t, err)

	_, err = m.Inspect(ctx, models.PurposePasswordReset, first)
	assert.ErrorIs(t, err, ErrUsed)
	_, err = m.Inspect(ctx, models.PurposePasswordReset, second)
	assert.NoError(t, err)
}

func TestRotateAndReject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, clk := newManager(t)
	orgID := uuid.New()

	raw, tok, err := m.Issue(ctx, Invitation, Subject{OrganizationID: &orgID, Email: "bob@example.com"})
	require.NoError(t, err)

	clk.Advance(6 * 24 * time.Hour)
	rotated, updated, err := m.Rotate(ctx, Invitation, tok.ID)
	require.NoError(t, err)
	assert.NotEqual(t, raw, rotated)
	assert.True(t, updated.ExpiresAt.After(tok.ExpiresAt))

	_, err = m.Inspect(ctx, models.PurposeInvitation, raw)
	assert.ErrorIs(t, err, ErrNotFound, "old secret stops working after rotation")
	_, err = m.Inspect(ctx, models.PurposeInvitation, rotated)
	require.NoError(t, err)

	require.NoError(t, m.Reject(ctx, tok.ID))
	assert.ErrorIs(t, m.Reject(ctx, tok.ID), ErrProcessed)
	_, _, err = m.Rotate(ctx, Invitation, tok.ID)
	assert.ErrorIs(t, err, ErrProcessed)
	_, err = m.Inspect(ctx, models.PurposeInvitation, rotated)
	assert.ErrorIs(t, err, ErrUsed)
}

func TestConcurrentConsumeHasOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t)
	userID := uuid.New()
	raw, _, err := m.Issue(ctx, PasswordReset, Subject{UserID: &userID})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Consume(ctx, models.PurposePasswordReset, raw, nil); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
