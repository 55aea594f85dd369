package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredTokenStore deletes tokens past their expiry.
type ExpiredTokenStore interface {
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
	DeleteExpiredSecureTokens(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper periodically removes expired refresh and secure tokens.
type Sweeper struct {
	store    ExpiredTokenStore
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(store ExpiredTokenStore, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: store, interval: interval, logger: logger, now: time.Now}
}

// Sweep runs one cleanup pass and returns the number of rows removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	now := s.now()
	refresh, err := s.store.DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		return 0, err
	}
	secure, err := s.store.DeleteExpiredSecureTokens(ctx, now)
	if err != nil {
		return refresh, err
	}
	if refresh+secure > 0 {
		s.logger.Info("expired tokens removed", zap.Int64("refresh_tokens", refresh), zap.Int64("secure_tokens", secure))
	}
	return refresh + secure, nil
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("token sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("token sweeper stopping")
			return
		case <-ticker.C:
		}
	}
}
