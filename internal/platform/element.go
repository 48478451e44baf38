package platform

import "errors"

// ErrUnsupportedMedia is returned when an element cannot decode the supplied
// media type. Fatal for that file: reloading the same bytes will not help.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Source is the byte content an element plays, tagged with its origin so the
// session owner can decide whether a held element may be reused.
type Source struct {
	BookID    string
	FileID    string
	Data      []byte
	MediaType string
	// Duration is a hint in seconds from the manifest; elements that can
	// derive the real duration from the data ignore it.
	Duration float64
}

// EventKind identifies an asynchronous element event
type EventKind int

const (
	// EventEnded fires once when playback reaches the end of the source
	EventEnded EventKind = iota
	// EventStalled fires when the element reports readiness but playback
	// stopped making progress
	EventStalled
	// EventError fires on an unrecoverable element failure
	EventError
)

// Event is an asynchronous signal from the live element
type Event struct {
	Kind EventKind
	Err  error
}

// Element is one platform media element. The engine holds at most one live
// element at a time; all access goes through the session owner.
//
// Load is synchronous and validates the media (the metadata-ready point).
// Ended/stalled/error signals arrive on Events.
type Element interface {
	// Load replaces the element's source. Position resets to zero.
	Load(src Source) error
	// Play starts or resumes playback
	Play() error
	// Pause halts playback, keeping position
	Pause()
	// Paused reports whether the element is currently not playing
	Paused() bool
	// Seek moves the playhead to the given position in seconds
	Seek(seconds float64) error
	// CurrentTime returns the playhead position in seconds
	CurrentTime() float64
	// Duration returns the source duration in seconds, 0 if unknown
	Duration() float64
	// SetVolume sets the volume in [0, 1]
	SetVolume(v float64)
	// SetRate sets the playback rate (1.0 = normal)
	SetRate(r float64)
	// Valid reports whether the element holds a usable, non-errored source
	Valid() bool
	// Source returns the identity of the loaded source
	Source() (bookID, fileID string, ok bool)
	// Events delivers asynchronous element signals
	Events() <-chan Event
	// Close releases the element and any platform resources it holds
	Close()
}
