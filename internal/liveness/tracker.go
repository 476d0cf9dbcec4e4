// Package liveness はエージェントからのハートビートを記録し、オンライン判定を行います。
package liveness

import (
	"sync"
	"time"
)

// DefaultThreshold は最後の ping からオンラインとみなす時間です。
const DefaultThreshold = 15 * time.Second

// Option は Tracker の設定を変更します。
type Option func(*Tracker)

// WithClock は現在時刻の取得方法を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker は最後のハートビート時刻を保持します。
type Tracker struct {
	mu        sync.RWMutex
	last      time.Time
	threshold time.Duration
	now       func() time.Time
}

// NewTracker は Tracker を作成します。threshold が 0 以下なら DefaultThreshold を使います。
func NewTracker(threshold time.Duration, opts ...Option) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	t := &Tracker{threshold: threshold, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ping はハートビートを記録し、その時刻を返します。
func (t *Tracker) Ping() time.Time {
	now := t.now()
	t.mu.Lock()
	t.last = now
	t.mu.Unlock()
	return now
}

// LastPing は最後のハートビート時刻を返します。未受信なら false です。
func (t *Tracker) LastPing() (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, !t.last.IsZero()
}

// Online は最後のハートビートから threshold 未満ならオンラインです。
func (t *Tracker) Online() bool {
	last, ok := t.LastPing()
	if !ok {
		return false
	}
	return t.now().Sub(last) < t.threshold
}
