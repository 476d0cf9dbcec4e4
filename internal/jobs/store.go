package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrJobNotFound はジョブがアクティブでない (未登録または終了済み) 場合に返ります。
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition は現在の状態から要求された遷移ができない場合に返ります。
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrDuplicateJob は同じIDのジョブが既に存在する場合に返ります。
	ErrDuplicateJob = errors.New("job already exists")
)

// Store は印刷ジョブの保存先です。終了状態になったジョブはアクティブ集合から外れ、
// 以降の状態遷移は ErrJobNotFound になります。Get は終了済みジョブも返します。
type Store interface {
	Enqueue(ctx context.Context, job *Job) error
	ListPending(ctx context.Context) ([]*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	MarkPrinting(ctx context.Context, id string) (*Job, error)
	MarkDone(ctx context.Context, id string) (*Job, error)
	MarkError(ctx context.Context, id, reason string) (*Job, error)
	// ExpireFrom はジョブが from の状態にある場合だけエラー終了させます。
	ExpireFrom(ctx context.Context, id string, from Status, reason string) (*Job, error)
}

const (
	jobKeyPrefix     = "printjob:"
	historyKeyPrefix = "printjob:history:"
	queueKey         = "printjob:queue"
	maxTxRetries     = 16
)

// RedisStore はジョブを Redis に保存します。アクティブなジョブはリストで順序を保持します。
type RedisStore struct {
	rdb        *redis.Client
	historyTTL time.Duration
	now        func() time.Time
}

// NewRedisStore は RedisStore を作成します。historyTTL は終了済みジョブの保持期間です。
func NewRedisStore(rdb *redis.Client, historyTTL time.Duration) *RedisStore {
	return &RedisStore{
		rdb:        rdb,
		historyTTL: historyTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisStore) Enqueue(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if job.ID == "" {
		return fmt.Errorf("job.ID is required")
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	ok, err := s.rdb.SetNX(ctx, jobKey(job.ID), payload, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	return s.rdb.RPush(ctx, queueKey, job.ID).Err()
}

func (s *RedisStore) ListPending(ctx context.Context) ([]*Job, error) {
	ids, err := s.rdb.LRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	pending := make([]*Job, 0, len(ids))
	if len(ids) == 0 {
		return pending, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, err
		}
		if job.Status == StatusPending {
			pending = append(pending, &job)
		}
	}
	return pending, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, ErrJobNotFound
	}
	for _, key := range []string{jobKey(id), historyKey(id)} {
		data, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, err
		}
		return &job, nil
	}
	return nil, ErrJobNotFound
}

func (s *RedisStore) MarkPrinting(ctx context.Context, id string) (*Job, error) {
	return s.transition(ctx, id, false, func(job *Job) error {
		if job.Status != StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, job.Status)
		}
		job.Status = StatusPrinting
		return nil
	})
}

func (s *RedisStore) MarkDone(ctx context.Context, id string) (*Job, error) {
	return s.transition(ctx, id, true, func(job *Job) error {
		s.finish(job, StatusDone, "")
		return nil
	})
}

func (s *RedisStore) MarkError(ctx context.Context, id, reason string) (*Job, error) {
	return s.transition(ctx, id, true, func(job *Job) error {
		s.finish(job, StatusError, reason)
		return nil
	})
}

func (s *RedisStore) ExpireFrom(ctx context.Context, id string, from Status, reason string) (*Job, error) {
	return s.transition(ctx, id, true, func(job *Job) error {
		if job.Status != from {
			return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, job.Status)
		}
		s.finish(job, StatusError, reason)
		return nil
	})
}

func (s *RedisStore) finish(job *Job, status Status, reason string) {
	now := s.now()
	job.Status = status
	job.CompletedAt = &now
	job.Error = reason
}

// transition は WATCH によりジョブを楽観的ロックで更新します。
// terminal の場合はアクティブ集合から外し、履歴キーへ移します。
func (s *RedisStore) transition(ctx context.Context, id string, terminal bool, mutate func(*Job) error) (*Job, error) {
	key := jobKey(id)
	var updated *Job

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		if err != nil {
			return err
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		if err := mutate(&job); err != nil {
			return err
		}
		payload, err := json.Marshal(&job)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if terminal {
				pipe.Del(ctx, key)
				pipe.LRem(ctx, queueKey, 0, id)
				pipe.Set(ctx, historyKey(id), payload, s.historyTTL)
				return nil
			}
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &job
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("job %s: too many concurrent updates", id)
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func historyKey(id string) string {
	return historyKeyPrefix + id
}
