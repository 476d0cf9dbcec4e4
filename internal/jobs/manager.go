package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// ExpiredReason は pending のまま期限切れになったジョブの Error に入ります。
	ExpiredReason = "expired: not printed before the pending deadline"
	// UnreportedReason は printing のまま完了報告がなかったジョブの Error に入ります。
	UnreportedReason = "expired: agent never reported"
)

// FileRemover はジョブが所有するファイルを削除します。
type FileRemover interface {
	Remove(paths ...string) error
}

// Expirer は期限の来たジョブを処理します。from は予約時点のジョブの状態です。
type Expirer interface {
	Expire(ctx context.Context, jobID string, from Status) error
}

// ExpiryScheduler はジョブの期限切れ処理を予約します。
// 同じジョブへの再予約は前の予約を置き換えるか、from の違いで無害になります。
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, jobID string, from Status, after time.Duration) error
}

// Observer はジョブのライフサイクルを観測します。
type Observer interface {
	JobEnqueued()
	JobClaimed()
	JobCompleted()
	JobFailed()
	JobExpired()
}

type nopObserver struct{}

func (nopObserver) JobEnqueued()  {}
func (nopObserver) JobClaimed()   {}
func (nopObserver) JobCompleted() {}
func (nopObserver) JobFailed()    {}
func (nopObserver) JobExpired()   {}

// ManagerOptions は Manager の依存です。Expiry と Observer は省略できます。
type ManagerOptions struct {
	Store      Store
	Files      FileRemover
	Expiry     ExpiryScheduler
	PendingTTL time.Duration
	// PrintingTTL は claim 後に done/error の報告を待つ時間です。0 なら期限なし。
	PrintingTTL time.Duration
	Observer    Observer
	Logger      *zap.Logger
}

// Manager はジョブ状態の遷移と、終了時のファイル削除を担います。
type Manager struct {
	store    Store
	files    FileRemover
	expiry      ExpiryScheduler
	ttl         time.Duration
	printingTTL time.Duration
	observer    Observer
	logger   *zap.Logger
}

// NewManager は Manager を初期化します。
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("store is nil")
	}
	if opts.Files == nil {
		return nil, errors.New("file remover is nil")
	}
	m := &Manager{
		store:       opts.Store,
		files:       opts.Files,
		expiry:      opts.Expiry,
		ttl:         opts.PendingTTL,
		printingTTL: opts.PrintingTTL,
		observer:    opts.Observer,
		logger:      opts.Logger,
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m, nil
}

// Submit はジョブを pending として登録し、期限切れ処理を予約します。
func (m *Manager) Submit(ctx context.Context, job *Job) error {
	job.Status = StatusPending
	if err := m.store.Enqueue(ctx, job); err != nil {
		return err
	}
	m.observer.JobEnqueued()

	m.scheduleExpiry(ctx, job.ID, StatusPending, m.ttl)
	return nil
}

// Pending は受付順の pending ジョブを返します。
func (m *Manager) Pending(ctx context.Context) ([]*Job, error) {
	return m.store.ListPending(ctx)
}

// Get はジョブを返します。終了済みジョブも対象です。
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// Claim は pending のジョブを printing にし、完了報告の期限を予約します。
func (m *Manager) Claim(ctx context.Context, id string) (*Job, error) {
	job, err := m.store.MarkPrinting(ctx, id)
	if err != nil {
		return nil, err
	}
	m.observer.JobClaimed()
	m.scheduleExpiry(ctx, id, StatusPrinting, m.printingTTL)
	return job, nil
}

// Complete はジョブを done にしてファイルを削除します。
// 終了済みまたは未登録のジョブには ErrJobNotFound を返します。
func (m *Manager) Complete(ctx context.Context, id string) (*Job, error) {
	job, err := m.store.MarkDone(ctx, id)
	if err != nil {
		return nil, err
	}
	m.cleanup(job)
	m.observer.JobCompleted()
	return job, nil
}

// Fail はジョブを error にしてファイルを削除します。
func (m *Manager) Fail(ctx context.Context, id, reason string) (*Job, error) {
	job, err := m.store.MarkError(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	m.cleanup(job)
	m.observer.JobFailed()
	return job, nil
}

// Expire は from の状態のまま期限を迎えたジョブを error にしてファイルを削除します。
// 状態が既に変わっている、または終了済みのジョブには何もしません。
func (m *Manager) Expire(ctx context.Context, id string, from Status) error {
	var reason string
	switch from {
	case StatusPending:
		reason = ExpiredReason
	case StatusPrinting:
		reason = UnreportedReason
	default:
		return fmt.Errorf("expire job %s: cannot expire from %q", id, from)
	}

	job, err := m.store.ExpireFrom(ctx, id, from, reason)
	if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("expire job %s: %w", id, err)
	}
	m.cleanup(job)
	m.observer.JobExpired()
	m.logger.Warn("job expired",
		zap.String("job_id", id),
		zap.String("from", string(from)),
		zap.String("file", job.OriginalName))
	return nil
}

func (m *Manager) scheduleExpiry(ctx context.Context, id string, from Status, after time.Duration) {
	if m.expiry == nil || after <= 0 {
		return
	}
	if err := m.expiry.ScheduleExpiry(ctx, id, from, after); err != nil {
		m.logger.Warn("failed to schedule job expiry",
			zap.String("job_id", id),
			zap.String("from", string(from)),
			zap.Error(err))
	}
}

func (m *Manager) cleanup(job *Job) {
	if err := m.files.Remove(job.Files()...); err != nil {
		m.logger.Warn("failed to remove job files", zap.String("job_id", job.ID), zap.Error(err))
	}
	if c, ok := m.expiry.(interface{ CancelExpiry(jobID string) }); ok {
		c.CancelExpiry(job.ID)
	}
}
