package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultHistoryLimit = 200

// MemoryStore はプロセス内でジョブを保持します。再起動でジョブは失われます。
type MemoryStore struct {
	mu           sync.Mutex
	order        []string
	active       map[string]*Job
	history      []*Job
	historyLimit int
	now          func() time.Time
}

// NewMemoryStore は MemoryStore を作成します。historyLimit は保持する終了済みジョブ数です。
func NewMemoryStore(historyLimit int) *MemoryStore {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &MemoryStore{
		active:       make(map[string]*Job),
		historyLimit: historyLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if job.ID == "" {
		return fmt.Errorf("job.ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	s.active[job.ID] = job.Clone()
	s.order = append(s.order, job.ID)
	return nil
}

func (s *MemoryStore) ListPending(_ context.Context) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]*Job, 0, len(s.order))
	for _, id := range s.order {
		if job := s.active[id]; job.Status == StatusPending {
			pending = append(pending, job.Clone())
		}
	}
	return pending, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.active[id]; ok {
		return job.Clone(), nil
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ID == id {
			return s.history[i].Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

func (s *MemoryStore) MarkPrinting(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.active[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, job.Status)
	}
	job.Status = StatusPrinting
	return job.Clone(), nil
}

func (s *MemoryStore) MarkDone(_ context.Context, id string) (*Job, error) {
	return s.finish(id, StatusDone, "", "")
}

func (s *MemoryStore) MarkError(_ context.Context, id, reason string) (*Job, error) {
	return s.finish(id, StatusError, reason, "")
}

func (s *MemoryStore) ExpireFrom(_ context.Context, id string, from Status, reason string) (*Job, error) {
	return s.finish(id, StatusError, reason, from)
}

// finish はジョブを終了状態にします。from が空でなければ現在の状態が from の場合に限ります。
func (s *MemoryStore) finish(id string, status Status, reason string, from Status) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.active[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if from != "" && job.Status != from {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, job.Status)
	}

	now := s.now()
	job.Status = status
	job.CompletedAt = &now
	job.Error = reason

	delete(s.active, id)
	for i, queued := range s.order {
		if queued == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.history = append(s.history, job)
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = append([]*Job(nil), s.history[over:]...)
	}
	return job.Clone(), nil
}
