package playback

import (
	"context"
	"sync"
	"time"

	"github.com/tomeshelf/playback/internal/api/content"
	"github.com/tomeshelf/playback/internal/logger"
	"github.com/tomeshelf/playback/internal/models"
	"github.com/tomeshelf/playback/internal/util"
)

// ContentFetcher fetches the raw bytes of one audio file
type ContentFetcher interface {
	Fetch(ctx context.Context, bookID, fileID string) (*content.FileContent, error)
}

type preloadEntry struct {
	content *content.FileContent
	index   int
	fetched time.Time
}

// Preloader warms the files that follow the active one so gapless
// continuation never waits on the network. The file directly after the
// active one is fetched eagerly; the ones after that wait out a short delay
// so rapid file hopping does not flood the backend.
type Preloader struct {
	mu       sync.Mutex
	fetcher  ContentFetcher
	limiter  *util.RateLimiter
	logger   *logger.Logger
	count    int
	delay    time.Duration

	bookID   string
	entries  map[string]preloadEntry
	inflight map[string]struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPreloader creates a preloader that keeps up to count upcoming files warm
func NewPreloader(fetcher ContentFetcher, limiter *util.RateLimiter, count int, delay time.Duration) *Preloader {
	log := logger.Get().Logger.With().
		Str("component", "preloader").
		Logger()

	return &Preloader{
		fetcher:  fetcher,
		limiter:  limiter,
		logger:   &logger.Logger{Logger: log},
		count:    count,
		delay:    delay,
		entries:  make(map[string]preloadEntry),
		inflight: make(map[string]struct{}),
	}
}

// Activate repositions the preload window after a file becomes active. Cached
// files whose ordinal fell behind the active file are evicted, then the
// upcoming window is warmed in the background.
func (p *Preloader) Activate(book *models.Audiobook, activeFileID string) {
	if p.count <= 0 || book == nil {
		return
	}
	active, ok := book.FileByID(activeFileID)
	if !ok {
		return
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	if p.bookID != book.ID {
		p.entries = make(map[string]preloadEntry)
		p.bookID = book.ID
	}
	for id, e := range p.entries {
		if e.index <= active.Index {
			delete(p.entries, id)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	window := p.window(book, active)
	if len(window) == 0 {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.warm(ctx, book.ID, window)
	}()
}

// window returns up to count files following the active one, in order
func (p *Preloader) window(book *models.Audiobook, active models.AudioFile) []models.AudioFile {
	var out []models.AudioFile
	cur := active
	for len(out) < p.count {
		next, ok := book.FileAfter(cur.ID)
		if !ok {
			break
		}
		out = append(out, next)
		cur = next
	}
	return out
}

func (p *Preloader) warm(ctx context.Context, bookID string, window []models.AudioFile) {
	// The immediate successor is what gapless continuation needs, so it
	// skips both the settle delay and the limiter.
	p.fetchOne(ctx, bookID, window[0])

	if len(window) == 1 {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(p.delay):
	}

	for _, f := range window[1:] {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		p.fetchOne(ctx, bookID, f)
	}
}

// fetchOne fetches and caches a single file unless it is already cached or a
// fetch for it is in flight.
func (p *Preloader) fetchOne(ctx context.Context, bookID string, f models.AudioFile) {
	p.mu.Lock()
	if _, cached := p.entries[f.ID]; cached {
		p.mu.Unlock()
		return
	}
	if _, busy := p.inflight[f.ID]; busy {
		p.mu.Unlock()
		return
	}
	p.inflight[f.ID] = struct{}{}
	p.mu.Unlock()

	fc, err := p.fetcher.Fetch(ctx, bookID, f.ID)

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, f.ID)

	if err != nil {
		// Preload failures are silent; playback falls back to an on-demand
		// fetch when the file is actually selected.
		if ctx.Err() == nil {
			p.logger.Debug("Preload fetch failed", map[string]interface{}{
				"book_id": bookID,
				"file_id": f.ID,
				"error":   err.Error(),
			})
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	p.entries[f.ID] = preloadEntry{content: fc, index: f.Index, fetched: time.Now()}
	p.logger.Debug("Preloaded file", map[string]interface{}{
		"book_id": bookID,
		"file_id": f.ID,
		"bytes":   len(fc.Data),
	})
}

// Take removes and returns the cached content for a file, if present
func (p *Preloader) Take(fileID string) (*content.FileContent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[fileID]
	if !ok {
		return nil, false
	}
	delete(p.entries, fileID)
	return e.content, true
}

// Cached reports whether a file is currently warm, for observability
func (p *Preloader) Cached(fileID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[fileID]
	return ok
}

// Close cancels any in-flight warming and waits for it to finish
func (p *Preloader) Close() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.wg.Wait()
}
