package jobs

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisStore は TEST_REDIS_URL が設定されている場合だけ RedisStore を返します。
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rdb.Ping(ctx).Err())
	return NewRedisStore(rdb, time.Minute)
}

func pendingIDs(t *testing.T, s Store, want map[string]bool) []string {
	t.Helper()
	list, err := s.ListPending(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, j := range list {
		if want[j.ID] {
			ids = append(ids, j.ID)
		}
	}
	return ids
}

func TestRedisStoreLifecycle(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	a, b := newJob(uuid.NewString()), newJob(uuid.NewString())
	a.Settings.ResolvedPages.Pages = []int{1, 3}
	require.NoError(t, s.Enqueue(ctx, a))
	require.NoError(t, s.Enqueue(ctx, b))
	assert.ErrorIs(t, s.Enqueue(ctx, a), ErrDuplicateJob)

	mine := map[string]bool{a.ID: true, b.ID: true}
	assert.Equal(t, []string{a.ID, b.ID}, pendingIDs(t, s, mine))

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, got.Settings.ResolvedPages.Pages)

	printing, err := s.MarkPrinting(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPrinting, printing.Status)
	assert.Equal(t, []string{b.ID}, pendingIDs(t, s, mine))

	_, err = s.ExpireFrom(ctx, a.ID, StatusPending, ExpiredReason)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	done, err := s.MarkDone(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, done.Status)
	require.NotNil(t, done.CompletedAt)

	_, err = s.MarkDone(ctx, a.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	history, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, history.Status)

	expired, err := s.ExpireFrom(ctx, b.ID, StatusPending, ExpiredReason)
	require.NoError(t, err)
	assert.Equal(t, StatusError, expired.Status)
	assert.Empty(t, pendingIDs(t, s, mine))
}

func TestRedisStoreSingleClaimWins(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	job := newJob(uuid.NewString())
	require.NoError(t, s.Enqueue(ctx, job))
	t.Cleanup(func() { _, _ = s.MarkDone(ctx, job.ID) })

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.MarkPrinting(ctx, job.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
