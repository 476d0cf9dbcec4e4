package main

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mfarzz/webprintrdbi/internal/config"
	"github.com/mfarzz/webprintrdbi/internal/jobs"
	"github.com/mfarzz/webprintrdbi/internal/storage"
)

// jobsRuntime はジョブ管理と期限切れワーカーの組です。
type jobsRuntime struct {
	manager  *jobs.Manager
	shutdown func()
}

// setupJobs は QUEUE_REDIS_URL の有無でメモリ/Redis のどちらかを選んでジョブ管理を組み立てます。
func setupJobs(ctx context.Context, cfg *config.Config, files *storage.Local, observer jobs.Observer, logger *zap.Logger) (*jobsRuntime, error) {
	if cfg.QueueRedisURL == "" {
		expiry := jobs.NewTimerExpiry(logger)
		manager, err := jobs.NewManager(jobs.ManagerOptions{
			Store:       jobs.NewMemoryStore(cfg.HistoryLimit),
			Files:       files,
			Expiry:      expiry,
			PendingTTL:  cfg.PendingTTL(),
			PrintingTTL: cfg.PrintingTTL(),
			Observer:    observer,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		expiry.Start(manager)
		logger.Info("using in-memory job store", zap.Int("history_limit", cfg.HistoryLimit))
		return &jobsRuntime{manager: manager, shutdown: expiry.Shutdown}, nil
	}

	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse QUEUE_REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	expiry, err := jobs.NewAsynqExpiry(cfg.QueueRedisURL, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	manager, err := jobs.NewManager(jobs.ManagerOptions{
		Store:       jobs.NewRedisStore(redisClient, cfg.HistoryTTL()),
		Files:       files,
		Expiry:      expiry,
		PendingTTL:  cfg.PendingTTL(),
		PrintingTTL: cfg.PrintingTTL(),
		Observer:    observer,
		Logger:      logger,
	})
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	if err := expiry.Start(manager); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to start expiry worker: %w", err)
	}
	logger.Info("using redis job store", zap.String("addr", opt.Addr))

	return &jobsRuntime{
		manager: manager,
		shutdown: func() {
			expiry.Shutdown()
			_ = redisClient.Close()
		},
	}, nil
}
