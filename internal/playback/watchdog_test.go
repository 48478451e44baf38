package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatchdogEndReached(t *testing.T) {
	w := NewWatchdog(1500*time.Millisecond, 3*time.Second)

	tests := []struct {
		name       string
		pos, dur   float64
		background bool
		want       bool
	}{
		{"mid file", 50, 100, false, false},
		{"just outside foreground window", 98, 100, false, false},
		{"inside foreground window", 99, 100, false, true},
		{"at the end", 100, 100, false, true},
		{"background window is wider", 97.5, 100, true, true},
		{"outside background window", 96, 100, true, false},
		{"unknown duration", 50, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.EndReached(tt.pos, tt.dur, tt.background))
		})
	}
}

func TestWatchdogStalled(t *testing.T) {
	w := NewWatchdog(time.Second, time.Second)
	now := time.Unix(1700000000, 0)
	w.now = func() time.Time { return now }

	// First observation primes the history
	assert.False(t, w.Stalled(10, true))

	// Advancing playhead is healthy
	now = now.Add(5 * time.Second)
	assert.False(t, w.Stalled(15, true))

	// Frozen playhead within the window is tolerated
	now = now.Add(5 * time.Second)
	assert.False(t, w.Stalled(15, true))

	// Frozen past the window is a stall
	now = now.Add(stallWindow)
	assert.True(t, w.Stalled(15, true))
}

func TestWatchdogPausedNeverStalls(t *testing.T) {
	w := NewWatchdog(time.Second, time.Second)
	now := time.Unix(1700000000, 0)
	w.now = func() time.Time { return now }

	assert.False(t, w.Stalled(10, false))
	now = now.Add(time.Hour)
	assert.False(t, w.Stalled(10, false))

	// Resuming restarts the observation window
	assert.False(t, w.Stalled(10, true))
	now = now.Add(stallWindow)
	assert.True(t, w.Stalled(10, true))
}

func TestWatchdogResetClearsHistory(t *testing.T) {
	w := NewWatchdog(time.Second, time.Second)
	now := time.Unix(1700000000, 0)
	w.now = func() time.Time { return now }

	assert.False(t, w.Stalled(10, true))
	w.Reset()
	now = now.Add(stallWindow)
	// Post-reset the first observation primes again instead of stalling
	assert.False(t, w.Stalled(10, true))
}
