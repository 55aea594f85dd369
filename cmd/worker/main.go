// Package main runs the background worker: email delivery and expired token cleanup.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teamspace/backend/config"
	"github.com/teamspace/backend/internal/auth"
	"github.com/teamspace/backend/internal/emaillogs"
	"github.com/teamspace/backend/internal/notify"
	"github.com/teamspace/backend/internal/securetoken"
	"github.com/teamspace/backend/internal/worker"
	"github.com/teamspace/backend/pkg/database"
	"github.com/teamspace/backend/pkg/queue"
	"github.com/teamspace/backend/pkg/redis"
)

// expiredTokens joins the two repositories the sweeper cleans.
type expiredTokens struct {
	refresh *auth.Repository
	secure  *securetoken.Repository
}

func (e expiredTokens) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	return e.refresh.DeleteExpiredRefreshTokens(ctx, before)
}

func (e expiredTokens) DeleteExpiredSecureTokens(ctx context.Context, before time.Time) (int64, error) {
	return e.secure.DeleteExpiredSecureTokens(ctx, before)
}

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.StorageDriver != config.StoragePostgres {
		logger.Fatal("worker requires STORAGE_DRIVER=postgres", zap.String("driver", cfg.StorageDriver))
	}
	if cfg.Redis.Addr == "" {
		logger.Fatal("worker requires REDIS_ADDR")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var mailer notify.Mailer
	if cfg.Email.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUser,
			Password: cfg.Email.SMTPPass,
			From:     cfg.Email.FromAddress,
			FromName: cfg.Email.FromName,
		})
		logger.Info("smtp delivery enabled", zap.String("host", cfg.Email.SMTPHost))
	} else {
		mailer = notify.NewLogMailer(logger.Named("mailer"))
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewEmailProcessor(jobQueue, mailer, emaillogs.NewRepository(pool), logger.Named("email"))
	sweeper := worker.NewSweeper(
		expiredTokens{refresh: auth.NewRepository(pool), secure: securetoken.NewRepository(pool)},
		cfg.Worker.CleanupInterval,
		logger.Named("sweeper"),
	)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); processor.Run(workerCtx) }()
	go func() { defer wg.Done(); sweeper.Run(workerCtx) }()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
