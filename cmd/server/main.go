package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teamspace/backend/config"
	"github.com/teamspace/backend/internal/notify"
	"github.com/teamspace/backend/internal/obs"
	"github.com/teamspace/backend/pkg/database"
	"github.com/teamspace/backend/pkg/queue"
	"github.com/teamspace/backend/pkg/redis"
)

const productName = "Teamspace"

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Server.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	checks := map[string]healthCheck{}

	var st stores
	switch cfg.StorageDriver {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		st = memoryStores()
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
			MaxConns:        int32(cfg.Database.MaxConns),
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
		}, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		st = postgresStores(pool)
		checks["database"] = pool.Ping
	}

	renderer := notify.NewRenderer(cfg.Google.FrontendURL, productName)
	var notifier notify.Notifier
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		notifier = notify.NewQueueNotifier(queue.NewQueue(rdb.Client, logger), renderer)
		checks["redis"] = rdb.Healthy
	} else {
		logger.Warn("REDIS_ADDR not set, emails are logged instead of queued")
		notifier = notify.NewLogNotifier(renderer, logger.Named("notify"), cfg.Server.Env == config.EnvDevelopment)
	}

	a := newApp(cfg, st, notifier, logger)
	if err := a.roleSvc.EnsurePermissions(ctx); err != nil {
		logger.Fatal("permission catalog", zap.Error(err))
	}

	obs.Register(prometheus.DefaultRegisterer)
	router := a.router(logger, checks)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	stopSweep := make(chan struct{})
	go a.limiter.Sweep(time.Minute, stopSweep)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	close(stopSweep)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
