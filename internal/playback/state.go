package playback

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomeshelf/playback/internal/models"
)

// State is the transport state of a playback session
type State string

const (
	// StateIdle means no file is active
	StateIdle State = "idle"
	// StateLoading means a file's content or metadata is being prepared
	StateLoading State = "loading"
	// StateReadyPaused means the active file is loaded and paused
	StateReadyPaused State = "ready-paused"
	// StatePlaying means the active file is audible
	StatePlaying State = "playing"
	// StateSeeking means an explicit position change is in flight
	StateSeeking State = "seeking"
	// StateError means the active file failed to load or decode
	StateError State = "error"
)

// transitions is the allowed transition table. Seeking and error are
// reachable from any state, so they are handled in CanTransition directly.
var transitions = map[State][]State{
	StateIdle:        {StateLoading},
	StateLoading:     {StateReadyPaused, StatePlaying, StateIdle},
	StateReadyPaused: {StatePlaying, StateLoading, StateIdle},
	StatePlaying:     {StateReadyPaused, StateIdle, StateLoading},
	StateSeeking:     {StatePlaying, StateReadyPaused},
	StateError:       {StateLoading, StateIdle},
}

// Session is the ephemeral state of one open audiobook. The flags that the
// original engine threaded through closures are explicit fields here,
// mutated only by state machine transitions.
type Session struct {
	ID           string
	Book         *models.Audiobook
	ActiveFileID string

	State    State
	Position float64
	Duration float64

	Volume float64
	Muted  bool
	Rate   float64
	Loop   bool

	// SleepDeadline pauses playback when reached; zero means no timer
	SleepDeadline time.Time

	// AutoplayPending means playback should start as soon as loading finishes
	AutoplayPending bool
	// Engaged means the active file actually played or was seeked. Files
	// that were merely opened must never gain a progress record.
	Engaged bool
	// UserSeeked means a human moved the playhead of the active file. Once
	// set, persisted progress must never reposition the playhead for the
	// rest of this file's session.
	UserSeeked bool

	// Completed means the final file finished and replay was offered
	Completed bool

	// Err is the last surfaced failure, nil outside StateError
	Err error
}

// NewSession creates a fresh idle session for one audiobook
func NewSession(book *models.Audiobook) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Book:   book,
		State:  StateIdle,
		Volume: 1.0,
		Rate:   1.0,
	}
}

// CanTransition reports whether moving to the given state is legal
func (s *Session) CanTransition(to State) bool {
	if to == s.State {
		return true
	}
	// Explicit position changes and failures may interrupt anything
	if to == StateSeeking || to == StateError {
		return true
	}
	for _, allowed := range transitions[s.State] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the session to the given state
func (s *Session) Transition(to State) error {
	if !s.CanTransition(to) {
		return fmt.Errorf("illegal transition %s -> %s", s.State, to)
	}
	if s.State == StateError && to != StateError {
		s.Err = nil
	}
	s.State = to
	return nil
}

// Fail moves the session to the error state, recording the cause
func (s *Session) Fail(err error) {
	s.State = StateError
	s.Err = err
}

// BeginFile resets the per-file session flags for a newly selected file
func (s *Session) BeginFile(fileID string, autoplay bool) {
	s.ActiveFileID = fileID
	s.Position = 0
	s.Duration = 0
	s.AutoplayPending = autoplay
	s.UserSeeked = false
	s.Engaged = false
	s.Completed = false
}

// SleepTimerExpired reports whether the sleep deadline passed
func (s *Session) SleepTimerExpired(now time.Time) bool {
	return !s.SleepDeadline.IsZero() && !now.Before(s.SleepDeadline)
}
