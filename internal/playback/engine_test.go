package playback

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomeshelf/playback/internal/api/content"
	"github.com/tomeshelf/playback/internal/models"
	"github.com/tomeshelf/playback/internal/platform"
)

type fakeManifests struct {
	book *models.Audiobook
	err  error
}

func (m *fakeManifests) GetAudiobook(ctx context.Context, bookID string) (*models.Audiobook, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.book, nil
}

// lockedClock is a thread-safe manual clock driving the stub elements
type lockedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newLockedClock() *lockedClock {
	return &lockedClock{t: time.Unix(1700000000, 0)}
}

func (c *lockedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *lockedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type engineFixture struct {
	engine   *Engine
	api      *fakeProgressAPI
	fetcher  *fakeFetcher
	clock    *lockedClock
	bridge   *platform.ChannelBridge
	elements *elementLog
}

type elementLog struct {
	mu      sync.Mutex
	created []*platform.StubElement
}

func (l *elementLog) add(el *platform.StubElement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, el)
}

func (l *elementLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.created)
}

func (l *elementLog) last() *platform.StubElement {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.created) == 0 {
		return nil
	}
	return l.created[len(l.created)-1]
}

func newEngineFixture(t *testing.T, book *models.Audiobook) *engineFixture {
	t.Helper()

	clock := newLockedClock()
	api := newFakeProgressAPI()
	ff := newFakeFetcher()
	bridge := platform.NewChannelBridge()
	elements := &elementLog{}

	owner := NewOwner(func() (platform.Element, error) {
		el := platform.NewStubElementWithClock(clock.now)
		elements.add(el)
		return el, nil
	})
	persister := NewPersister(api, nil, 5*time.Millisecond, 50*time.Millisecond)
	preloader := NewPreloader(ff, nil, 2, time.Millisecond)
	policy := &Policy{
		UserRetryLimit:        1,
		AutoAdvanceRetryLimit: 3,
		Backoff:               5 * time.Millisecond,
	}

	cfg := Config{
		HeartbeatInterval:      5 * time.Millisecond,
		BackgroundPollInterval: 2 * time.Millisecond,
		EndTolerance:           200 * time.Millisecond,
		BackgroundEndTolerance: 500 * time.Millisecond,
		PreloadCount:           2,
		PreloadDelay:           time.Millisecond,
	}
	caps := platform.Capabilities{MediaSession: true, Autoplay: true}

	e := New(cfg, caps, owner, persister, preloader, &fakeManifests{book: book}, ff, policy, bridge)
	e.Start()
	t.Cleanup(bridge.Close)
	t.Cleanup(e.Close)

	return &engineFixture{
		engine:   e,
		api:      api,
		fetcher:  ff,
		clock:    clock,
		bridge:   bridge,
		elements: elements,
	}
}

func (f *engineFixture) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.engine.State().State == want
	}, 2*time.Second, 2*time.Millisecond, "never reached state %s, last: %+v", want, f.engine.State())
}

func TestEngineOpenBookResumesLastFile(t *testing.T) {
	book := testBook()
	fx := newEngineFixture(t, book)
	fx.api.lastFile = "f2"
	fx.api.records["f2"] = &models.ProgressRecord{FileID: "f2", CurrentTime: 30, Duration: 200, Progress: 15}

	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	snap := fx.engine.State()
	assert.Equal(t, "f2", snap.FileID)
	assert.Equal(t, StateReadyPaused, snap.State)
	assert.InDelta(t, 30.0, snap.Position, 0.001)
}

func TestEngineOpenBookCompletedFileRestartsAtZero(t *testing.T) {
	book := testBook()
	fx := newEngineFixture(t, book)
	fx.api.lastFile = "f2"
	fx.api.records["f2"] = &models.ProgressRecord{FileID: "f2", CurrentTime: 200, Duration: 200, Progress: 100}

	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	snap := fx.engine.State()
	assert.Equal(t, "f2", snap.FileID)
	assert.Equal(t, 0.0, snap.Position)
}

func TestEngineOpenBookWithoutHistoryStartsAtFirstFile(t *testing.T) {
	fx := newEngineFixture(t, testBook())

	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	snap := fx.engine.State()
	assert.Equal(t, "f1", snap.FileID)
	assert.Equal(t, StateReadyPaused, snap.State)
}

func TestEnginePlayPauseIdempotent(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	require.NoError(t, fx.engine.Play())
	require.NoError(t, fx.engine.Play())
	assert.Equal(t, StatePlaying, fx.engine.State().State)

	fx.clock.advance(10 * time.Second)
	require.NoError(t, fx.engine.Pause())
	require.NoError(t, fx.engine.Pause())

	snap := fx.engine.State()
	assert.Equal(t, StateReadyPaused, snap.State)
	assert.InDelta(t, 10.0, snap.Position, 0.1)

	// Pausing queued a position write
	require.Eventually(t, func() bool {
		for _, upd := range fx.api.savedUpdates() {
			if upd.FileID == "f1" && upd.CurrentTime > 9 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestEngineSeekPersistsPosition(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	require.NoError(t, fx.engine.Seek(42))

	snap := fx.engine.State()
	assert.Equal(t, StateReadyPaused, snap.State)
	assert.InDelta(t, 42.0, snap.Position, 0.001)

	require.Eventually(t, func() bool {
		for _, upd := range fx.api.savedUpdates() {
			if upd.FileID == "f1" && upd.CurrentTime == 42 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestEngineSeekWhilePlayingKeepsPlaying(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))
	require.NoError(t, fx.engine.Play())

	require.NoError(t, fx.engine.Seek(50))
	assert.Equal(t, StatePlaying, fx.engine.State().State)
}

func TestEngineAutoAdvance(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))
	require.NoError(t, fx.engine.Play())

	// Run f1 (100s) past its end; the watchdog or the ended event advances
	fx.clock.advance(101 * time.Second)

	require.Eventually(t, func() bool {
		snap := fx.engine.State()
		return snap.FileID == "f2" && snap.State == StatePlaying
	}, 2*time.Second, 2*time.Millisecond)

	// The outgoing file's final position was persisted before the switch
	require.Eventually(t, func() bool {
		for _, upd := range fx.api.savedUpdates() {
			if upd.FileID == "f1" && upd.CurrentTime >= 99 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	// The last-active pointer followed the switch
	require.Eventually(t, func() bool {
		for _, p := range fx.api.savedPointers() {
			if p == "f2" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	// The whole run used one element; nothing else could have been audible
	assert.Equal(t, 1, fx.elements.count())
}

func TestEngineBookCompletion(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))
	require.NoError(t, fx.engine.SelectFile("f3", true))
	fx.waitState(t, StatePlaying)

	fx.clock.advance(301 * time.Second)

	require.Eventually(t, func() bool {
		snap := fx.engine.State()
		return snap.Completed && snap.State == StateReadyPaused
	}, 2*time.Second, 2*time.Millisecond)

	snap := fx.engine.State()
	assert.Equal(t, "f3", snap.FileID)
	assert.Equal(t, 0.0, snap.Position)
}

func TestEngineLoopOne(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))
	fx.engine.SetLoop(true)
	require.NoError(t, fx.engine.Play())

	fx.clock.advance(101 * time.Second)

	// The same file restarts instead of advancing
	require.Eventually(t, func() bool {
		snap := fx.engine.State()
		return snap.FileID == "f1" && snap.State == StatePlaying && snap.Position < 1
	}, 2*time.Second, 2*time.Millisecond)
}

func TestEngineDecodeFailureIsFatal(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	fx.fetcher.errs["f1"] = platform.ErrUnsupportedMedia

	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	fx.waitState(t, StateError)
	assert.Contains(t, fx.engine.State().Error, "decode")

	// No retries burned on an unplayable file
	calls := 0
	for _, c := range fx.fetcher.fetched() {
		if c == "f1" {
			calls++
		}
	}
	assert.Equal(t, 1, calls)
}

func TestEngineAuthFailureIsFatal(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	fx.fetcher.errs["f1"] = content.ErrUnauthorized

	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	fx.waitState(t, StateError)
	assert.Contains(t, fx.engine.State().Error, "auth")
}

func TestEngineTransientNetworkFailureRetries(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	// The preloader burns one failure silently; the on-demand fetch hits the
	// second and the retry succeeds
	fx.fetcher.failN["f2"] = 2
	fx.fetcher.failErr = &url.Error{Op: "Get", URL: "http://backend", Err: errors.New("connection refused")}

	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	// Wait for the preloader's attempt so the sequencing is deterministic
	require.Eventually(t, func() bool {
		for _, c := range fx.fetcher.fetched() {
			if c == "f2" {
				return true
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, fx.engine.SelectFile("f2", true))

	require.Eventually(t, func() bool {
		snap := fx.engine.State()
		return snap.FileID == "f2" && snap.State == StatePlaying
	}, 2*time.Second, 2*time.Millisecond)
}

func TestEngineReloadAfterErrorKeepsSeekPosition(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	// A stored position exists, but once the listener seeks it must never win
	fx.api.records["f1"] = &models.ProgressRecord{FileID: "f1", CurrentTime: 5, Duration: 100, Progress: 5}
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	require.NoError(t, fx.engine.Play())
	fx.waitState(t, StatePlaying)
	require.NoError(t, fx.engine.Seek(42))
	fx.waitState(t, StatePlaying)

	fx.elements.last().EmitError(&url.Error{Op: "Get", URL: "http://backend", Err: errors.New("connection reset")})

	// The transient failure reloads the file and resumes at the seeked
	// position, not at the stored one and not at zero
	require.Eventually(t, func() bool {
		snap := fx.engine.State()
		return snap.State == StatePlaying && snap.Position > 41
	}, 2*time.Second, 2*time.Millisecond, "playhead moved after reload: %+v", fx.engine.State())

	snap := fx.engine.State()
	assert.Equal(t, "f1", snap.FileID)
	assert.InDelta(t, 42.0, snap.Position, 0.5)
}

func TestEnginePointerOnlySwitchWritesNoPosition(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	// Switch to a file without ever playing anything
	require.NoError(t, fx.engine.SelectFile("f2", false))

	require.Eventually(t, func() bool {
		for _, p := range fx.api.savedPointers() {
			if p == "f2" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	// The pointer moved but no progress record was fabricated
	assert.Empty(t, fx.api.savedUpdates())
}

func TestEngineNextPrevious(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	require.NoError(t, fx.engine.Next())
	assert.Equal(t, "f2", fx.engine.State().FileID)

	require.NoError(t, fx.engine.Previous())
	assert.Equal(t, "f1", fx.engine.State().FileID)

	// Stepping off either end is a no-op
	require.NoError(t, fx.engine.Previous())
	assert.Equal(t, "f1", fx.engine.State().FileID)
}

func TestEngineBridgeCommands(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	fx.bridge.Dispatch(platform.BridgePlay)
	fx.waitState(t, StatePlaying)

	fx.bridge.Dispatch(platform.BridgePause)
	fx.waitState(t, StateReadyPaused)

	fx.bridge.Dispatch(platform.BridgeNext)
	require.Eventually(t, func() bool {
		return fx.engine.State().FileID == "f2"
	}, time.Second, 2*time.Millisecond)
}

func TestEngineSleepTimerPauses(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))
	require.NoError(t, fx.engine.Play())

	fx.engine.SetSleepTimer(20 * time.Millisecond)
	fx.waitState(t, StateReadyPaused)
}

func TestEngineVolumeAndRate(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))

	fx.engine.SetVolume(0.5)
	fx.engine.SetMuted(true)
	fx.engine.SetRate(1.5)

	snap := fx.engine.State()
	assert.Equal(t, 0.5, snap.Volume)
	assert.True(t, snap.Muted)
	assert.Equal(t, 1.5, snap.Rate)
}

func TestEngineSubscribe(t *testing.T) {
	fx := newEngineFixture(t, testBook())
	ch, cancel := fx.engine.Subscribe()
	defer cancel()

	require.NoError(t, fx.engine.OpenBook(context.Background(), "book1"))
	require.NoError(t, fx.engine.Play())

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.State == StatePlaying {
				return
			}
		case <-deadline:
			t.Fatal("never observed a playing snapshot")
		}
	}
}

func TestEngineIntentsWithoutSession(t *testing.T) {
	fx := newEngineFixture(t, testBook())

	assert.ErrorIs(t, fx.engine.Play(), ErrNoSession)
	assert.ErrorIs(t, fx.engine.Pause(), ErrNoSession)
	assert.ErrorIs(t, fx.engine.Seek(10), ErrNoSession)
	assert.ErrorIs(t, fx.engine.Next(), ErrNoSession)
}
