package platform

import (
	"sync"
	"time"
)

// StubElement is a clock-driven element with no audio output. It backs
// headless runs (no audio device detected) and tests: position advances with
// wall time while playing, scaled by the playback rate.
type StubElement struct {
	mu  sync.Mutex
	now func() time.Time

	events chan Event

	src      Source
	loaded   bool
	errored  bool
	playing  bool
	base     float64
	since    time.Time
	rate     float64
	volume   float64
	duration float64
	ended    bool

	// LoadErr, when set, makes the next Load fail with that error
	LoadErr error
}

// NewStubElement creates a stub element driven by the real clock
func NewStubElement() *StubElement {
	return NewStubElementWithClock(time.Now)
}

// NewStubElementWithClock creates a stub element with an injectable clock
func NewStubElementWithClock(now func() time.Time) *StubElement {
	return &StubElement{
		now:    now,
		events: make(chan Event, 16),
		rate:   1.0,
		volume: 1.0,
	}
}

// Load replaces the element's source. Position resets to zero.
func (e *StubElement) Load(src Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.LoadErr != nil {
		err := e.LoadErr
		e.LoadErr = nil
		e.errored = true
		e.loaded = false
		return err
	}

	e.src = src
	e.loaded = true
	e.errored = false
	e.playing = false
	e.base = 0
	e.ended = false
	e.duration = src.Duration
	return nil
}

// Play starts or resumes the position clock
func (e *StubElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded || e.errored {
		return ErrUnsupportedMedia
	}
	if e.playing {
		return nil
	}
	e.playing = true
	e.since = e.now()
	return nil
}

// Pause halts the position clock, keeping the position
func (e *StubElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseLocked()
}

func (e *StubElement) pauseLocked() {
	if !e.playing {
		return
	}
	e.base = e.positionLocked()
	e.playing = false
}

// Paused reports whether the element is currently not playing
func (e *StubElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.playing
}

// Seek moves the playhead
func (e *StubElement) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return ErrUnsupportedMedia
	}
	if seconds < 0 {
		seconds = 0
	}
	if e.duration > 0 && seconds > e.duration {
		seconds = e.duration
	}
	e.base = seconds
	e.since = e.now()
	e.ended = false
	return nil
}

// CurrentTime returns the playhead position in seconds. Reaching the end of
// the source pauses the clock and emits a single EventEnded.
func (e *StubElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.positionLocked()
	if e.duration > 0 && pos >= e.duration && e.playing && !e.ended {
		e.ended = true
		e.base = e.duration
		e.playing = false
		select {
		case e.events <- Event{Kind: EventEnded}:
		default:
		}
	}
	return pos
}

func (e *StubElement) positionLocked() float64 {
	pos := e.base
	if e.playing {
		pos += e.now().Sub(e.since).Seconds() * e.rate
	}
	if e.duration > 0 && pos > e.duration {
		pos = e.duration
	}
	return pos
}

// Duration returns the source duration hint
func (e *StubElement) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// SetVolume sets the (unused) volume
func (e *StubElement) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = clamp01(v)
}

// SetRate sets the playback rate, re-anchoring the position clock
func (e *StubElement) SetRate(r float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r <= 0 {
		r = 1.0
	}
	e.base = e.positionLocked()
	e.since = e.now()
	e.rate = r
}

// Valid reports whether the element holds a usable source
func (e *StubElement) Valid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded && !e.errored
}

// Source returns the identity of the loaded source
func (e *StubElement) Source() (string, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return "", "", false
	}
	return e.src.BookID, e.src.FileID, true
}

// Events delivers asynchronous element signals
func (e *StubElement) Events() <-chan Event {
	return e.events
}

// Close releases the element
func (e *StubElement) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseLocked()
	e.loaded = false
}

// EmitStalled injects a stall signal, for tests and shell integrations
func (e *StubElement) EmitStalled() {
	select {
	case e.events <- Event{Kind: EventStalled}:
	default:
	}
}

// EmitError injects an error signal and marks the element invalid
func (e *StubElement) EmitError(err error) {
	e.mu.Lock()
	e.errored = true
	e.playing = false
	e.mu.Unlock()
	select {
	case e.events <- Event{Kind: EventError, Err: err}:
	default:
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
