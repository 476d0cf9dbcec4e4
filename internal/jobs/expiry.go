package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimerExpiry はプロセス内タイマーで期限切れ処理を予約します。
// ジョブごとにタイマーは 1 つで、再予約すると前のタイマーを止めます。
type TimerExpiry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	target Expirer
	logger *zap.Logger
}

// NewTimerExpiry は TimerExpiry を作成します。
func NewTimerExpiry(logger *zap.Logger) *TimerExpiry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimerExpiry{timers: make(map[string]*time.Timer), logger: logger}
}

// Start は期限到来時に呼び出す処理を設定します。
func (e *TimerExpiry) Start(target Expirer) {
	e.mu.Lock()
	e.target = target
	e.mu.Unlock()
}

func (e *TimerExpiry) ScheduleExpiry(_ context.Context, jobID string, from Status, after time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.timers[jobID]; ok {
		old.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(after, func() {
		e.mu.Lock()
		if e.timers[jobID] == timer {
			delete(e.timers, jobID)
		}
		target := e.target
		e.mu.Unlock()

		if target == nil {
			return
		}
		if err := target.Expire(context.Background(), jobID, from); err != nil {
			e.logger.Warn("job expiry failed", zap.String("job_id", jobID), zap.Error(err))
		}
	})
	e.timers[jobID] = timer
	return nil
}

// CancelExpiry は予約済みの期限切れ処理を取り消します。
func (e *TimerExpiry) CancelExpiry(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[jobID]; ok {
		t.Stop()
		delete(e.timers, jobID)
	}
}

// Shutdown はすべてのタイマーを停止します。
func (e *TimerExpiry) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}
