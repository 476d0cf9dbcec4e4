package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerOnlineWindow(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	tracker := NewTracker(15*time.Second, WithClock(func() time.Time { return now }))

	assert.False(t, tracker.Online())
	_, ok := tracker.LastPing()
	assert.False(t, ok)

	tracker.Ping()
	assert.True(t, tracker.Online())

	now = now.Add(14 * time.Second)
	assert.True(t, tracker.Online())

	now = now.Add(time.Second)
	assert.False(t, tracker.Online())

	last, ok := tracker.LastPing()
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC), last)
}

func TestTrackerDefaultThreshold(t *testing.T) {
	tracker := NewTracker(0)
	assert.Equal(t, DefaultThreshold, tracker.threshold)
}
