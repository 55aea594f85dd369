package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamspace/backend/internal/memstore"
	"github.com/teamspace/backend/internal/models"
)

func TestSweepRemovesExpiredTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()
	userID := uuid.New()

	require.NoError(t, store.CreateRefreshToken(ctx, &models.RefreshToken{UserID: userID, TokenHash: "old", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, store.CreateRefreshToken(ctx, &models.RefreshToken{UserID: userID, TokenHash: "live", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.CreateSecureToken(ctx, &models.SecureToken{
		Purpose: models.PurposePasswordReset, UserID: &userID, TokenHash: "stale", ExpiresAt: now.Add(-time.Minute),
	}))

	s := NewSweeper(store, time.Minute, nil)
	s.now = func() time.Time { return now }
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.GetRefreshTokenByHash(ctx, "live")
	assert.NoError(t, err)
	_, err = store.GetRefreshTokenByHash(ctx, "old")
	assert.Error(t, err)

	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := NewSweeper(memstore.New(), time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
