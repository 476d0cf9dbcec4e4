// Package jobs は印刷ジョブの状態管理と期限切れ処理を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	taskTypeExpire = "printjob:expire"
	expiryQueue    = "printjobs"
)

type expirePayload struct {
	JobID string `json:"jobId"`
	From  Status `json:"from"`
}

// AsynqExpiry は Asynq の遅延タスクで期限切れ処理を予約します。
// サーバー再起動後も予約が残ります。
type AsynqExpiry struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewAsynqExpiry は Redis URL から AsynqExpiry を初期化します。
func NewAsynqExpiry(redisURL string, logger *zap.Logger) (*AsynqExpiry, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsynqExpiry{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				expiryQueue: 1,
			},
		}),
		mux:    asynq.NewServeMux(),
		logger: logger,
	}, nil
}

// ScheduleExpiry は状態ごとに別のタスク ID で予約します。
// 古い状態の予約は実行時に状態が一致しないため何もしません。
func (e *AsynqExpiry) ScheduleExpiry(ctx context.Context, jobID string, from Status, after time.Duration) error {
	body, err := json.Marshal(expirePayload{JobID: jobID, From: from})
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskTypeExpire, body, asynq.Queue(expiryQueue))
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(after),
		asynq.MaxRetry(1),
		asynq.TaskID(expiryTaskID(jobID, from)),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func expiryTaskID(jobID string, from Status) string {
	return "expire:" + string(from) + ":" + jobID
}

// Start はワーカーをバックグラウンドで起動し、期限切れタスクを target に渡します。
func (e *AsynqExpiry) Start(target Expirer) error {
	e.mux.HandleFunc(taskTypeExpire, func(ctx context.Context, task *asynq.Task) error {
		var payload expirePayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return err
		}
		if payload.JobID == "" {
			return fmt.Errorf("missing jobId in payload")
		}
		if payload.From == "" {
			payload.From = StatusPending
		}
		return target.Expire(ctx, payload.JobID, payload.From)
	})
	if err := e.server.Start(e.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	e.logger.Info("asynq expiry worker started", zap.String("queue", expiryQueue))
	return nil
}

// Shutdown はワーカーとクライアントを閉じます。
func (e *AsynqExpiry) Shutdown() {
	e.server.Shutdown()
	if err := e.client.Close(); err != nil {
		e.logger.Warn("failed to close asynq client", zap.Error(err))
	}
}
