package jobs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type osRemover struct{}

func (osRemover) Remove(paths ...string) error {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

type countingObserver struct {
	mu                                            sync.Mutex
	enqueued, claimed, completed, failed, expired int
}

func (o *countingObserver) JobEnqueued()  { o.mu.Lock(); o.enqueued++; o.mu.Unlock() }
func (o *countingObserver) JobClaimed()   { o.mu.Lock(); o.claimed++; o.mu.Unlock() }
func (o *countingObserver) JobCompleted() { o.mu.Lock(); o.completed++; o.mu.Unlock() }
func (o *countingObserver) JobFailed()    { o.mu.Lock(); o.failed++; o.mu.Unlock() }
func (o *countingObserver) JobExpired()   { o.mu.Lock(); o.expired++; o.mu.Unlock() }

func jobWithFile(t *testing.T, id string) *Job {
	t.Helper()
	job := newJob(id)
	job.StoredFilePath = filepath.Join(t.TempDir(), id+".pdf")
	require.NoError(t, os.WriteFile(job.StoredFilePath, []byte("%PDF-1.4"), 0o644))
	return job
}

func newTestManager(t *testing.T, expiry ExpiryScheduler, ttl time.Duration) (*Manager, *countingObserver) {
	t.Helper()
	return newTestManagerWithPrintingTTL(t, expiry, ttl, 0)
}

func newTestManagerWithPrintingTTL(t *testing.T, expiry ExpiryScheduler, pendingTTL, printingTTL time.Duration) (*Manager, *countingObserver) {
	t.Helper()
	obs := &countingObserver{}
	m, err := NewManager(ManagerOptions{
		Store:       NewMemoryStore(10),
		Files:       osRemover{},
		Expiry:      expiry,
		PendingTTL:  pendingTTL,
		PrintingTTL: printingTTL,
		Observer:    obs,
	})
	require.NoError(t, err)
	return m, obs
}

func TestNewManagerRequiresDependencies(t *testing.T) {
	_, err := NewManager(ManagerOptions{Files: osRemover{}})
	assert.Error(t, err)
	_, err = NewManager(ManagerOptions{Store: NewMemoryStore(1)})
	assert.Error(t, err)
}

func TestManagerCompleteRemovesFileOnce(t *testing.T) {
	ctx := context.Background()
	m, obs := newTestManager(t, nil, 0)
	job := jobWithFile(t, "a")
	require.NoError(t, m.Submit(ctx, job))

	_, err := m.Claim(ctx, "a")
	require.NoError(t, err)
	_, err = m.Claim(ctx, "a")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	done, err := m.Complete(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, done.Status)
	assert.NoFileExists(t, job.StoredFilePath)

	_, err = m.Complete(ctx, "a")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.Equal(t, 1, obs.enqueued)
	assert.Equal(t, 1, obs.claimed)
	assert.Equal(t, 1, obs.completed)
}

func TestManagerFailRemovesFile(t *testing.T) {
	ctx := context.Background()
	m, obs := newTestManager(t, nil, 0)
	job := jobWithFile(t, "a")
	require.NoError(t, m.Submit(ctx, job))

	failed, err := m.Fail(ctx, "a", "out of paper")
	require.NoError(t, err)
	assert.Equal(t, "out of paper", failed.Error)
	assert.NoFileExists(t, job.StoredFilePath)
	assert.Equal(t, 1, obs.failed)
}

func TestManagerExpireMatchesScheduledStatus(t *testing.T) {
	ctx := context.Background()
	m, obs := newTestManager(t, nil, 0)
	pending := jobWithFile(t, "pending")
	printing := jobWithFile(t, "printing")
	require.NoError(t, m.Submit(ctx, pending))
	require.NoError(t, m.Submit(ctx, printing))
	_, err := m.Claim(ctx, "printing")
	require.NoError(t, err)

	require.NoError(t, m.Expire(ctx, "pending", StatusPending))
	// pending の期限は claim 済みのジョブには効かない
	require.NoError(t, m.Expire(ctx, "printing", StatusPending))
	require.NoError(t, m.Expire(ctx, "unknown", StatusPending))
	assert.Error(t, m.Expire(ctx, "pending", StatusDone))

	got, err := m.Get(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, ExpiredReason, got.Error)
	assert.NoFileExists(t, pending.StoredFilePath)

	got, err = m.Get(ctx, "printing")
	require.NoError(t, err)
	assert.Equal(t, StatusPrinting, got.Status)
	assert.FileExists(t, printing.StoredFilePath)
	assert.Equal(t, 1, obs.expired)
}

func TestTimerExpiryExpiresUnclaimedJobs(t *testing.T) {
	ctx := context.Background()
	expiry := NewTimerExpiry(nil)
	defer expiry.Shutdown()
	m, _ := newTestManager(t, expiry, 20*time.Millisecond)
	expiry.Start(m)

	job := jobWithFile(t, "a")
	require.NoError(t, m.Submit(ctx, job))

	assert.Eventually(t, func() bool {
		got, err := m.Get(ctx, "a")
		return err == nil && got.Status == StatusError
	}, time.Second, 5*time.Millisecond)
	assert.NoFileExists(t, job.StoredFilePath)
}

func TestTimerExpiryCancelledOnCompletion(t *testing.T) {
	ctx := context.Background()
	expiry := NewTimerExpiry(nil)
	defer expiry.Shutdown()
	m, _ := newTestManager(t, expiry, time.Hour)
	expiry.Start(m)

	require.NoError(t, m.Submit(ctx, jobWithFile(t, "a")))
	expiry.mu.Lock()
	assert.Len(t, expiry.timers, 1)
	expiry.mu.Unlock()

	_, err := m.Complete(ctx, "a")
	require.NoError(t, err)

	expiry.mu.Lock()
	defer expiry.mu.Unlock()
	assert.Empty(t, expiry.timers)
}

func TestManagerExpirePrintingWithoutReport(t *testing.T) {
	ctx := context.Background()
	m, obs := newTestManager(t, nil, 0)
	job := jobWithFile(t, "a")
	require.NoError(t, m.Submit(ctx, job))
	_, err := m.Claim(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, m.Expire(ctx, "a", StatusPrinting))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, UnreportedReason, got.Error)
	assert.NoFileExists(t, job.StoredFilePath)
	assert.Equal(t, 1, obs.expired)

	// 遅れて届いた done は 404 扱い
	_, err = m.Complete(ctx, "a")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestTimerExpiryFinishesClaimedJobWhenDoneIsLost(t *testing.T) {
	ctx := context.Background()
	expiry := NewTimerExpiry(nil)
	defer expiry.Shutdown()
	m, _ := newTestManagerWithPrintingTTL(t, expiry, time.Hour, 20*time.Millisecond)
	expiry.Start(m)

	job := jobWithFile(t, "a")
	require.NoError(t, m.Submit(ctx, job))
	_, err := m.Claim(ctx, "a")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := m.Get(ctx, "a")
		return err == nil && got.Status == StatusError && got.Error == UnreportedReason
	}, time.Second, 5*time.Millisecond)
	assert.NoFileExists(t, job.StoredFilePath)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTimerExpiryClaimReplacesPendingDeadline(t *testing.T) {
	ctx := context.Background()
	expiry := NewTimerExpiry(nil)
	defer expiry.Shutdown()
	m, _ := newTestManagerWithPrintingTTL(t, expiry, 20*time.Millisecond, time.Hour)
	expiry.Start(m)

	job := jobWithFile(t, "a")
	require.NoError(t, m.Submit(ctx, job))
	_, err := m.Claim(ctx, "a")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusPrinting, got.Status)
	assert.FileExists(t, job.StoredFilePath)

	expiry.mu.Lock()
	assert.Len(t, expiry.timers, 1)
	expiry.mu.Unlock()
}
