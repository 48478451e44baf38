package playback

import (
	"time"
)

// stallWindow is how long the playhead may sit still during nominal playback
// before the watchdog calls it a stall.
const stallWindow = 10 * time.Second

// Watchdog catches file endings the platform never reported. Backgrounded
// runtimes throttle media callbacks, so the final ended signal of a file can
// simply never arrive; the watchdog compares the observed playhead against
// the duration and declares the file finished once it parks inside the
// tolerance window. It also notices a playhead that stopped advancing.
type Watchdog struct {
	tolerance   time.Duration
	bgTolerance time.Duration

	lastPos    float64
	lastChange time.Time
	now        func() time.Time
}

// NewWatchdog creates a watchdog with foreground and background end
// tolerances. The background tolerance is wider because throttled runtimes
// report coarser positions.
func NewWatchdog(tolerance, bgTolerance time.Duration) *Watchdog {
	return &Watchdog{
		tolerance:   tolerance,
		bgTolerance: bgTolerance,
		now:         time.Now,
	}
}

// Reset clears the observation history, used on every file activation
func (w *Watchdog) Reset() {
	w.lastPos = 0
	w.lastChange = time.Time{}
}

// EndReached reports whether the playhead is close enough to the end that the
// file should be treated as finished.
func (w *Watchdog) EndReached(pos, duration float64, background bool) bool {
	if duration <= 0 {
		return false
	}
	tol := w.tolerance
	if background {
		tol = w.bgTolerance
	}
	return duration-pos <= tol.Seconds()
}

// Stalled reports whether the playhead has not advanced for the stall window
// while playback was supposed to be running.
func (w *Watchdog) Stalled(pos float64, playing bool) bool {
	now := w.now()
	if !playing {
		w.lastPos = pos
		w.lastChange = now
		return false
	}
	if pos != w.lastPos || w.lastChange.IsZero() {
		w.lastPos = pos
		w.lastChange = now
		return false
	}
	return now.Sub(w.lastChange) >= stallWindow
}
