package playback

import (
	"sync"

	"github.com/tomeshelf/playback/internal/logger"
	"github.com/tomeshelf/playback/internal/platform"
)

// ElementFactory creates a fresh platform element when the owner holds none
type ElementFactory func() (platform.Element, error)

// Owner is the single authority over the live audio element. Every playback
// path acquires its element through the owner, which guarantees at most one
// audible stream regardless of how fast the listener switches files.
type Owner struct {
	mu      sync.Mutex
	factory ElementFactory
	element platform.Element
	strays  []platform.Element
	logger  *logger.Logger
}

// NewOwner creates an owner backed by the given element factory
func NewOwner(factory ElementFactory) *Owner {
	log := logger.Get().Logger.With().
		Str("component", "session_owner").
		Logger()

	return &Owner{
		factory: factory,
		logger:  &logger.Logger{Logger: log},
	}
}

// AdoptStray registers an element the owner did not create, so the sweep in
// Acquire can silence it. Shells embedding the engine hand over any element
// they constructed themselves.
func (o *Owner) AdoptStray(el platform.Element) {
	if el == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strays = append(o.strays, el)
}

// Acquire returns the element to use for the given file. When the held
// element already carries this exact file and is still valid, it is returned
// as-is with reused true and the caller must not reload it. Otherwise the
// caller receives a silenced element and must load the new source into it.
//
// Acquire always pauses every other element first, before the caller gets a
// chance to start the new stream.
func (o *Owner) Acquire(bookID, fileID string) (platform.Element, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sweepLocked()

	if o.element != nil {
		curBook, curFile, ok := o.element.Source()
		if ok && curBook == bookID && curFile == fileID && o.element.Valid() {
			o.logger.Debug("Reusing element with identical source", map[string]interface{}{
				"book_id": bookID,
				"file_id": fileID,
			})
			return o.element, true, nil
		}
		o.element.Pause()
		return o.element, false, nil
	}

	el, err := o.factory()
	if err != nil {
		return nil, false, err
	}
	o.element = el
	return el, false, nil
}

// Current returns the held element, nil when none is active
func (o *Owner) Current() platform.Element {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.element
}

// Release pauses and destroys the held element. Used when the session closes
// and the byte handles behind the element must be revoked.
func (o *Owner) Release() {
	o.mu.Lock()
	el := o.element
	o.element = nil
	o.mu.Unlock()

	if el != nil {
		el.Pause()
		el.Close()
	}
}

// StopAll silences and releases everything: the held element and every
// adopted stray. The nuclear option for teardown paths.
func (o *Owner) StopAll() {
	o.mu.Lock()
	el := o.element
	strays := o.strays
	o.element = nil
	o.strays = nil
	o.mu.Unlock()

	for _, s := range strays {
		s.Pause()
		s.Close()
	}
	if el != nil {
		el.Pause()
		el.Close()
	}
}

// sweepLocked pauses adopted strays so they cannot play over the element the
// owner is about to hand out. Invalid strays are dropped from the registry.
func (o *Owner) sweepLocked() {
	if len(o.strays) == 0 {
		return
	}
	kept := o.strays[:0]
	for _, s := range o.strays {
		s.Pause()
		if s.Valid() {
			kept = append(kept, s)
		} else {
			s.Close()
		}
	}
	if swept := len(o.strays) - len(kept); swept > 0 {
		o.logger.Debug("Swept stray elements", map[string]interface{}{
			"dropped": swept,
		})
	}
	o.strays = kept
}
