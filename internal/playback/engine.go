package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomeshelf/playback/internal/logger"
	"github.com/tomeshelf/playback/internal/models"
	"github.com/tomeshelf/playback/internal/platform"
)

// ErrNoSession is returned by intents that need an open audiobook
var ErrNoSession = errors.New("no open playback session")

// ManifestAPI resolves a book identifier to its file manifest
type ManifestAPI interface {
	GetAudiobook(ctx context.Context, bookID string) (*models.Audiobook, error)
}

// Config tunes the engine's timers and budgets
type Config struct {
	HeartbeatInterval      time.Duration
	BackgroundPollInterval time.Duration
	EndTolerance           time.Duration
	BackgroundEndTolerance time.Duration
	PreloadCount           int
	PreloadDelay           time.Duration
}

// Snapshot is the externally observable engine state. Every control surface,
// in-process or remote, renders from the same snapshot.
type Snapshot struct {
	BookID    string  `json:"bookId,omitempty"`
	BookTitle string  `json:"bookTitle,omitempty"`
	FileID    string  `json:"fileId,omitempty"`
	State     State   `json:"state"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	Volume    float64 `json:"volume"`
	Muted     bool    `json:"muted"`
	Rate      float64 `json:"rate"`
	Loop      bool    `json:"loop"`
	Sleep     float64 `json:"sleepRemaining,omitempty"`
	Completed bool    `json:"completed,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Engine is the playback engine. All session state lives on a single loop
// goroutine; intents are posted to the loop and executed in arrival order, so
// no two mutations ever race. Blocking work inside an intent (a content
// fetch, a synchronous flush) simply delays the queue behind it.
type Engine struct {
	cfg       Config
	caps      platform.Capabilities
	owner     *Owner
	persister *Persister
	preloader *Preloader
	manifests ManifestAPI
	fetcher   ContentFetcher
	policy    *Policy
	bridge    platform.SessionBridge
	watchdog  *Watchdog
	logger    *logger.Logger

	cmds chan func()
	done chan struct{}
	stop sync.Once

	// loop-owned state, never touched off the loop goroutine
	session    *Session
	background bool
	ticker     *time.Ticker

	snapMu   sync.Mutex
	snapshot Snapshot
	subs     map[int]chan Snapshot
	nextSub  int
}

// New assembles an engine from its collaborators
func New(cfg Config, caps platform.Capabilities, owner *Owner, persister *Persister,
	preloader *Preloader, manifests ManifestAPI, fetcher ContentFetcher,
	policy *Policy, bridge platform.SessionBridge) *Engine {

	log := logger.Get().Logger.With().
		Str("component", "engine").
		Logger()

	return &Engine{
		cfg:       cfg,
		caps:      caps,
		owner:     owner,
		persister: persister,
		preloader: preloader,
		manifests: manifests,
		fetcher:   fetcher,
		policy:    policy,
		bridge:    bridge,
		watchdog:  NewWatchdog(cfg.EndTolerance, cfg.BackgroundEndTolerance),
		logger:    &logger.Logger{Logger: log},
		cmds:      make(chan func(), 32),
		done:      make(chan struct{}),
		snapshot:  Snapshot{State: StateIdle, Volume: 1.0, Rate: 1.0},
		subs:      make(map[int]chan Snapshot),
	}
}

// Start launches the engine loop
func (e *Engine) Start() {
	go e.run()
}

// Close stops the loop, flushes pending progress and silences all audio
func (e *Engine) Close() {
	e.stop.Do(func() {
		close(e.done)
	})
	e.preloader.Close()
	e.persister.Close()
	e.owner.StopAll()
}

func (e *Engine) run() {
	interval := e.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	e.ticker = time.NewTicker(interval)
	defer e.ticker.Stop()

	bridgeCmds := e.bridge.Commands()
	for {
		var events <-chan platform.Event
		if el := e.owner.Current(); el != nil {
			events = el.Events()
		}

		select {
		case <-e.done:
			return
		case fn := <-e.cmds:
			fn()
		case ev, ok := <-events:
			if ok {
				e.handleElementEvent(ev)
			}
		case cmd, ok := <-bridgeCmds:
			if !ok {
				bridgeCmds = nil
				continue
			}
			e.handleBridgeCommand(cmd)
		case <-e.ticker.C:
			e.onHeartbeat()
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish
func (e *Engine) do(fn func()) {
	ran := make(chan struct{})
	select {
	case e.cmds <- func() {
		fn()
		close(ran)
	}:
	case <-e.done:
		return
	}
	select {
	case <-ran:
	case <-e.done:
	}
}

// post queues fn on the loop goroutine without waiting
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.done:
	}
}

// OpenBook loads the book's manifest and activates its last-active file (or
// the first file for a book never opened before), paused. The previous
// session, if any, is flushed and released first.
func (e *Engine) OpenBook(ctx context.Context, bookID string) error {
	book, err := e.manifests.GetAudiobook(ctx, bookID)
	if err != nil {
		return err
	}
	if len(book.Files) == 0 {
		return errors.New("audiobook has no audio files")
	}

	start := book.Files[0]
	if last := e.persister.LastFile(ctx, bookID); last != "" {
		if f, ok := book.FileByID(last); ok {
			start = f
		}
	}

	e.do(func() {
		if e.session != nil {
			e.persister.Flush()
			e.owner.Release()
		}
		e.session = NewSession(book)
		e.logger.Info("Opened audiobook", map[string]interface{}{
			"book_id":    book.ID,
			"title":      book.Title,
			"files":      len(book.Files),
			"start_file": start.ID,
		})
		e.activateFile(start, false, false, 0)
	})
	return nil
}

// SelectFile activates the given file of the open book. autoplay starts
// playback as soon as the file is ready.
func (e *Engine) SelectFile(fileID string, autoplay bool) error {
	var err error
	e.do(func() {
		s := e.session
		if s == nil {
			err = ErrNoSession
			return
		}
		f, ok := s.Book.FileByID(fileID)
		if !ok {
			err = errors.New("unknown file: " + fileID)
			return
		}
		if s.ActiveFileID == fileID && s.State != StateError {
			// Re-selecting the active file toggles playback instead of
			// reloading it
			if autoplay {
				e.play()
			}
			return
		}
		e.activateFile(f, autoplay, false, 0)
	})
	return err
}

// Play starts or resumes playback. Idempotent while already playing.
func (e *Engine) Play() error {
	var err error
	e.do(func() {
		if e.session == nil {
			err = ErrNoSession
			return
		}
		e.play()
	})
	return err
}

// Pause pauses playback. Idempotent while already paused.
func (e *Engine) Pause() error {
	var err error
	e.do(func() {
		if e.session == nil {
			err = ErrNoSession
			return
		}
		e.pause()
	})
	return err
}

// Seek moves the playhead of the active file. A manual seek overrides any
// persisted position for the remainder of the file's session.
func (e *Engine) Seek(seconds float64) error {
	var err error
	e.do(func() {
		if e.session == nil {
			err = ErrNoSession
			return
		}
		e.seek(seconds)
	})
	return err
}

// Next activates the following file, keeping the play/pause state
func (e *Engine) Next() error {
	var err error
	e.do(func() {
		err = e.step(true)
	})
	return err
}

// Previous activates the preceding file, keeping the play/pause state
func (e *Engine) Previous() error {
	var err error
	e.do(func() {
		err = e.step(false)
	})
	return err
}

// SetVolume sets the output volume in [0, 1]
func (e *Engine) SetVolume(v float64) {
	e.do(func() {
		s := e.session
		if s == nil {
			return
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		s.Volume = v
		e.applyVolume()
		e.publish()
	})
}

// SetMuted mutes or unmutes without losing the volume setting
func (e *Engine) SetMuted(muted bool) {
	e.do(func() {
		s := e.session
		if s == nil {
			return
		}
		s.Muted = muted
		e.applyVolume()
		e.publish()
	})
}

// SetRate sets the playback rate, carried across file switches
func (e *Engine) SetRate(r float64) {
	e.do(func() {
		s := e.session
		if s == nil {
			return
		}
		if r <= 0 {
			r = 1.0
		}
		s.Rate = r
		if el := e.owner.Current(); el != nil {
			el.SetRate(r)
		}
		e.publish()
	})
}

// SetLoop toggles loop-one for the active file
func (e *Engine) SetLoop(loop bool) {
	e.do(func() {
		if e.session == nil {
			return
		}
		e.session.Loop = loop
		e.publish()
	})
}

// SetSleepTimer pauses playback after the given duration. A non-positive
// duration clears the timer.
func (e *Engine) SetSleepTimer(d time.Duration) {
	e.do(func() {
		s := e.session
		if s == nil {
			return
		}
		if d <= 0 {
			s.SleepDeadline = time.Time{}
		} else {
			s.SleepDeadline = time.Now().Add(d)
		}
		e.publish()
	})
}

// SleepAtChapterEnd arms the sleep timer to fire when the current chapter
// ends, honoring the playback rate.
func (e *Engine) SleepAtChapterEnd() error {
	var err error
	e.do(func() {
		s := e.session
		if s == nil {
			err = ErrNoSession
			return
		}
		f, ok := s.Book.FileByID(s.ActiveFileID)
		if !ok {
			err = errors.New("no active file")
			return
		}
		ch, ok := f.ChapterAt(s.Position)
		if !ok {
			err = errors.New("no chapter at current position")
			return
		}
		remaining := (ch.End - s.Position) / s.Rate
		s.SleepDeadline = time.Now().Add(time.Duration(remaining * float64(time.Second)))
		e.publish()
	})
	return err
}

// SetVisibility tells the engine whether the app is in the foreground. The
// watchdog polls more often and with a tighter end tolerance in the
// foreground.
func (e *Engine) SetVisibility(foreground bool) {
	e.do(func() {
		background := !foreground
		if e.background == background {
			return
		}
		e.background = background
		interval := e.cfg.HeartbeatInterval
		if background && e.cfg.BackgroundPollInterval > 0 {
			interval = e.cfg.BackgroundPollInterval
		}
		if interval > 0 && e.ticker != nil {
			e.ticker.Reset(interval)
		}
		e.logger.Debug("Visibility changed", map[string]interface{}{
			"background": background,
		})
	})
}

// State returns the last published snapshot
func (e *Engine) State() Snapshot {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	return e.snapshot
}

// Subscribe returns a channel of state snapshots and a cancel function.
// Slow subscribers miss intermediate snapshots rather than stalling the
// engine.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan Snapshot, 8)
	e.subs[id] = ch

	cancel := func() {
		e.snapMu.Lock()
		defer e.snapMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// --- loop-side implementation ---

// activateFile makes the given file the active one. On a real switch
// (attempt 0) the outgoing file's position is flushed and the last-active
// pointer moves before anything else happens, so a crash mid-switch never
// loses the listener's place. Retries re-enter with attempt > 0 and skip the
// switch bookkeeping.
func (e *Engine) activateFile(file models.AudioFile, autoplay, auto bool, attempt int) {
	s := e.session
	if s == nil {
		return
	}

	if attempt == 0 {
		if s.ActiveFileID != "" && s.ActiveFileID != file.ID {
			e.captureOutgoingPosition()
		}
		e.persister.Flush()
		e.persister.SavePointer(s.Book.ID, file.ID)

		if auto && !e.caps.Autoplay {
			autoplay = false
		}
		s.BeginFile(file.ID, autoplay)
	}

	_ = s.Transition(StateLoading)
	e.publish()

	el, reused, err := e.owner.Acquire(s.Book.ID, file.ID)
	if err != nil {
		e.failOrRetry(file, autoplay, auto, attempt, err)
		return
	}

	if !reused {
		fc, hit := e.preloader.Take(file.ID)
		if !hit {
			fc, err = e.fetcher.Fetch(context.Background(), s.Book.ID, file.ID)
			if err != nil {
				e.failOrRetry(file, autoplay, auto, attempt, err)
				return
			}
		}

		src := platform.Source{
			BookID:    s.Book.ID,
			FileID:    file.ID,
			Data:      fc.Data,
			MediaType: fc.MediaType,
			Duration:  file.Duration,
		}
		if err := el.Load(src); err != nil {
			e.failOrRetry(file, autoplay, auto, attempt, err)
			return
		}
		drainEvents(el)
		el.SetRate(s.Rate)

		if attempt > 0 || s.UserSeeked {
			// A mid-session reload puts the playhead back where the listener
			// left it, never at the file start
			if s.Position > 0 {
				_ = el.Seek(s.Position)
			}
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			resume := e.persister.Resume(ctx, s.Book.ID, file.ID)
			cancel()
			if resume > 0 {
				_ = el.Seek(resume)
			}
		}
	}
	e.applyVolume()

	// A newer selection may have superseded this activation while it waited
	// on the network
	if s != e.session || s.ActiveFileID != file.ID {
		return
	}

	s.Position = el.CurrentTime()
	s.Duration = el.Duration()
	e.watchdog.Reset()

	if s.AutoplayPending {
		s.AutoplayPending = false
		if err := el.Play(); err != nil {
			e.failOrRetry(file, autoplay, auto, attempt, err)
			return
		}
		s.Engaged = true
		_ = s.Transition(StatePlaying)
	} else {
		_ = s.Transition(StateReadyPaused)
	}

	e.preloader.Activate(s.Book, file.ID)
	e.publish()
}

// captureOutgoingPosition queues the live position of the outgoing file so
// the pre-switch flush writes the freshest value. Files that never engaged
// are skipped; a file that was only opened must not gain a progress record.
func (e *Engine) captureOutgoingPosition() {
	s := e.session
	if !s.Engaged {
		return
	}
	el := e.owner.Current()
	if el == nil {
		return
	}
	bookID, fileID, ok := el.Source()
	if !ok || bookID != s.Book.ID || fileID != s.ActiveFileID {
		return
	}
	e.persister.QueuePosition(bookID, models.ProgressUpdate{
		FileID:      fileID,
		CurrentTime: el.CurrentTime(),
		Duration:    el.Duration(),
	})
}

// failOrRetry classifies a playback failure and either schedules a retry or
// surfaces the error. Aborted loads disappear silently.
func (e *Engine) failOrRetry(file models.AudioFile, autoplay, auto bool, attempt int, err error) {
	s := e.session
	if s == nil {
		return
	}
	fe := NewFileError(file.ID, err)

	if e.policy.ShouldRetry(fe.Class, attempt, auto) {
		delay := e.policy.BackoffFor(attempt)
		e.logger.Warn("Playback failed, retrying", map[string]interface{}{
			"file_id": file.ID,
			"class":   string(fe.Class),
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		time.AfterFunc(delay, func() {
			e.post(func() {
				if e.session != s || s.ActiveFileID != file.ID {
					return
				}
				e.activateFile(file, autoplay, auto, attempt+1)
			})
		})
		return
	}

	if !fe.Class.Surfaced() {
		e.logger.Debug("Playback aborted", map[string]interface{}{
			"file_id": file.ID,
		})
		return
	}

	e.logger.Error("Playback failed", map[string]interface{}{
		"file_id": file.ID,
		"class":   string(fe.Class),
		"error":   err.Error(),
	})
	s.Fail(fe)
	e.publish()
}

func (e *Engine) play() {
	s := e.session
	switch s.State {
	case StatePlaying:
		return
	case StateLoading:
		s.AutoplayPending = true
		return
	case StateError:
		// A human asked again, reload the active file with the fail-fast
		// budget
		if f, ok := s.Book.FileByID(s.ActiveFileID); ok {
			_ = s.Transition(StateLoading)
			s.AutoplayPending = true
			e.activateFile(f, true, false, 1)
		}
		return
	case StateIdle:
		if len(s.Book.Files) > 0 {
			e.activateFile(s.Book.Files[0], true, false, 0)
		}
		return
	}

	el := e.owner.Current()
	if el == nil || !el.Valid() {
		if f, ok := s.Book.FileByID(s.ActiveFileID); ok {
			e.activateFile(f, true, false, 0)
		}
		return
	}
	if err := el.Play(); err != nil {
		if f, ok := s.Book.FileByID(s.ActiveFileID); ok {
			e.failOrRetry(f, true, false, 0, err)
		}
		return
	}
	s.Engaged = true
	_ = s.Transition(StatePlaying)
	e.publish()
}

func (e *Engine) pause() {
	s := e.session
	if s.State != StatePlaying {
		return
	}
	el := e.owner.Current()
	if el != nil {
		el.Pause()
		s.Position = el.CurrentTime()
		s.Duration = el.Duration()
		e.persister.QueuePosition(s.Book.ID, models.ProgressUpdate{
			FileID:      s.ActiveFileID,
			CurrentTime: s.Position,
			Duration:    s.Duration,
		})
	}
	_ = s.Transition(StateReadyPaused)
	e.publish()
}

func (e *Engine) seek(seconds float64) {
	s := e.session
	el := e.owner.Current()
	if el == nil || s.ActiveFileID == "" {
		return
	}
	wasPlaying := s.State == StatePlaying
	s.UserSeeked = true
	s.Engaged = true
	_ = s.Transition(StateSeeking)
	e.publish()

	if err := el.Seek(seconds); err != nil {
		s.Fail(NewFileError(s.ActiveFileID, err))
		e.publish()
		return
	}
	s.Position = el.CurrentTime()
	s.Duration = el.Duration()
	e.watchdog.Reset()
	e.persister.QueuePosition(s.Book.ID, models.ProgressUpdate{
		FileID:      s.ActiveFileID,
		CurrentTime: s.Position,
		Duration:    s.Duration,
	})

	if wasPlaying {
		if err := el.Play(); err == nil {
			_ = s.Transition(StatePlaying)
		} else {
			_ = s.Transition(StateReadyPaused)
		}
	} else {
		_ = s.Transition(StateReadyPaused)
	}
	e.publish()
}

func (e *Engine) step(forward bool) error {
	s := e.session
	if s == nil {
		return ErrNoSession
	}
	var (
		target models.AudioFile
		ok     bool
	)
	if forward {
		target, ok = s.Book.FileAfter(s.ActiveFileID)
	} else {
		target, ok = s.Book.FileBefore(s.ActiveFileID)
	}
	if !ok {
		return nil
	}
	autoplay := s.State == StatePlaying || s.AutoplayPending
	e.activateFile(target, autoplay, false, 0)
	return nil
}

func (e *Engine) onHeartbeat() {
	s := e.session
	if s == nil {
		return
	}
	el := e.owner.Current()
	if el == nil {
		return
	}

	pos := el.CurrentTime()
	dur := el.Duration()
	switch s.State {
	case StatePlaying, StateReadyPaused, StateSeeking:
		s.Position = pos
		s.Duration = dur
	}

	if s.SleepTimerExpired(time.Now()) {
		s.SleepDeadline = time.Time{}
		e.logger.Info("Sleep timer expired", map[string]interface{}{
			"file_id": s.ActiveFileID,
		})
		e.pause()
	}

	if s.State == StatePlaying {
		e.persister.Heartbeat(s.Book.ID, models.ProgressUpdate{
			FileID:      s.ActiveFileID,
			CurrentTime: pos,
			Duration:    dur,
		})
		if e.watchdog.EndReached(pos, dur, e.background) {
			e.handleEnded()
			return
		}
		if e.watchdog.Stalled(pos, true) {
			e.handleStall()
			return
		}
	}
	e.publish()
}

func (e *Engine) handleElementEvent(ev platform.Event) {
	switch ev.Kind {
	case platform.EventEnded:
		e.handleEnded()
	case platform.EventStalled:
		e.handleStall()
	case platform.EventError:
		s := e.session
		if s == nil || s.ActiveFileID == "" {
			return
		}
		if f, ok := s.Book.FileByID(s.ActiveFileID); ok {
			_ = s.Transition(StateLoading)
			s.AutoplayPending = true
			e.failOrRetry(f, true, true, 0, ev.Err)
		}
	}
}

// handleEnded runs the continuation decision after the active file finished,
// whether the platform reported it or the watchdog inferred it.
func (e *Engine) handleEnded() {
	s := e.session
	if s == nil || s.ActiveFileID == "" {
		return
	}
	if s.State != StatePlaying && s.State != StateSeeking {
		return
	}
	el := e.owner.Current()
	if el == nil {
		return
	}
	drainEvents(el)

	action, target := NextAction(s.Book, s.ActiveFileID, s.Loop)
	e.logger.Info("File ended", map[string]interface{}{
		"file_id": s.ActiveFileID,
		"action":  string(action),
	})

	switch action {
	case AdvanceLoop:
		if err := el.Seek(0); err != nil {
			s.Fail(NewFileError(s.ActiveFileID, err))
			e.publish()
			return
		}
		s.Position = 0
		e.watchdog.Reset()
		if err := el.Play(); err == nil {
			_ = s.Transition(StatePlaying)
		} else {
			_ = s.Transition(StateReadyPaused)
		}
		e.publish()

	case AdvanceNext:
		// activateFile flushes the outgoing position before the pointer
		// moves, so the finished file lands as completed even if the next
		// load fails
		e.activateFile(target, true, true, 0)

	case AdvanceComplete:
		e.captureOutgoingPosition()
		e.persister.Flush()
		el.Pause()
		_ = el.Seek(0)
		s.Position = 0
		s.Completed = true
		e.watchdog.Reset()
		_ = s.Transition(StateReadyPaused)
		e.logger.Info("Audiobook finished", map[string]interface{}{
			"book_id": s.Book.ID,
		})
		e.publish()

	case AdvanceNone:
	}
}

// handleStall tries to resume in place first; only when the element refuses
// does the engine fall back to a full reload with the generous budget.
func (e *Engine) handleStall() {
	s := e.session
	if s == nil || s.State != StatePlaying {
		return
	}
	el := e.owner.Current()
	if el == nil {
		return
	}
	e.logger.Warn("Playback stalled, resuming", map[string]interface{}{
		"file_id":  s.ActiveFileID,
		"position": s.Position,
	})
	e.watchdog.Reset()
	if err := el.Play(); err != nil {
		if f, ok := s.Book.FileByID(s.ActiveFileID); ok {
			_ = s.Transition(StateLoading)
			s.AutoplayPending = true
			e.failOrRetry(f, true, true, 0, err)
		}
	}
}

func (e *Engine) handleBridgeCommand(cmd platform.BridgeCommand) {
	if e.session == nil {
		return
	}
	switch cmd {
	case platform.BridgePlay:
		e.play()
	case platform.BridgePause:
		e.pause()
	case platform.BridgeNext:
		_ = e.step(true)
	case platform.BridgePrevious:
		_ = e.step(false)
	}
}

// applyVolume pushes the effective volume (zero while muted) to the element
func (e *Engine) applyVolume() {
	s := e.session
	if s == nil {
		return
	}
	el := e.owner.Current()
	if el == nil {
		return
	}
	v := s.Volume
	if s.Muted {
		v = 0
	}
	el.SetVolume(v)
}

// publish rebuilds the snapshot and fans it out to subscribers and the
// media-session bridge.
func (e *Engine) publish() {
	s := e.session
	snap := Snapshot{State: StateIdle, Volume: 1.0, Rate: 1.0}
	if s != nil {
		snap = Snapshot{
			BookID:    s.Book.ID,
			BookTitle: s.Book.Title,
			FileID:    s.ActiveFileID,
			State:     s.State,
			Position:  s.Position,
			Duration:  s.Duration,
			Volume:    s.Volume,
			Muted:     s.Muted,
			Rate:      s.Rate,
			Loop:      s.Loop,
			Completed: s.Completed,
		}
		if !s.SleepDeadline.IsZero() {
			if remaining := time.Until(s.SleepDeadline).Seconds(); remaining > 0 {
				snap.Sleep = remaining
			}
		}
		if s.Err != nil {
			snap.Error = s.Err.Error()
		}
	}

	e.snapMu.Lock()
	e.snapshot = snap
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	e.snapMu.Unlock()

	e.bridge.Publish(platform.NowPlaying{
		BookID:   snap.BookID,
		FileID:   snap.FileID,
		Title:    snap.BookTitle,
		Playing:  snap.State == StatePlaying,
		Position: snap.Position,
		Duration: snap.Duration,
	})
}

// drainEvents discards queued element events that belong to a superseded
// source.
func drainEvents(el platform.Element) {
	for {
		select {
		case <-el.Events():
		default:
			return
		}
	}
}
