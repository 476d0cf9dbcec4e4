package agent

import (
	"sync"
	"time"
)

// ClaimCache は最近処理したジョブ ID を記憶し、重複印刷を防ぎます。
// 処理中のジョブは TTL に関係なく再取得できません。
type ClaimCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]claimEntry
}

type claimEntry struct {
	inFlight bool
	at       time.Time
}

func NewClaimCache(ttl time.Duration) *ClaimCache {
	return &ClaimCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]claimEntry),
	}
}

// TryClaim はジョブを処理中として登録します。処理中または TTL 内なら false を返します。
func (c *ClaimCache) TryClaim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)
	if _, ok := c.entries[id]; ok {
		return false
	}
	c.entries[id] = claimEntry{inFlight: true, at: now}
	return true
}

// Finish は処理を終えたジョブを TTL の間だけ記憶します。
func (c *ClaimCache) Finish(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = claimEntry{at: c.now()}
}

// Release はジョブを忘れ、次のポーリングで再試行できるようにします。
func (c *ClaimCache) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Len は記憶しているジョブ数を返します。
func (c *ClaimCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep(c.now())
	return len(c.entries)
}

func (c *ClaimCache) sweep(now time.Time) {
	for id, e := range c.entries {
		if !e.inFlight && now.Sub(e.at) >= c.ttl {
			delete(c.entries, id)
		}
	}
}
