package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClaimCacheSuppressesDuplicates(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClaimCache(time.Minute)
	c.now = func() time.Time { return now }

	assert.True(t, c.TryClaim("a"))
	assert.False(t, c.TryClaim("a"), "in-flight job must not be claimed twice")

	// 処理中は TTL を過ぎても保持される
	now = now.Add(5 * time.Minute)
	assert.False(t, c.TryClaim("a"))

	c.Finish("a")
	now = now.Add(59 * time.Second)
	assert.False(t, c.TryClaim("a"))

	now = now.Add(time.Second)
	assert.True(t, c.TryClaim("a"))
}

func TestClaimCacheRelease(t *testing.T) {
	c := NewClaimCache(time.Minute)

	assert.True(t, c.TryClaim("a"))
	assert.True(t, c.TryClaim("b"))
	assert.Equal(t, 2, c.Len())

	c.Release("a")
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.TryClaim("a"))
}
