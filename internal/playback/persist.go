package playback

import (
	"context"
	"sync"
	"time"

	"github.com/tomeshelf/playback/internal/journal"
	"github.com/tomeshelf/playback/internal/logger"
	"github.com/tomeshelf/playback/internal/models"
)

// writeTimeout bounds a single backend write so a dead network cannot hold
// the flusher forever.
const writeTimeout = 10 * time.Second

// ProgressAPI is the backend progress service surface the persister needs
type ProgressAPI interface {
	GetProgress(ctx context.Context, bookID, fileID string) (*models.ProgressRecord, error)
	GetLastFile(ctx context.Context, bookID string) (string, error)
	SaveProgress(ctx context.Context, bookID string, upd models.ProgressUpdate) error
	SaveLastFile(ctx context.Context, bookID, fileID string) error
}

// Persister owns the two independent write paths to the progress service:
// debounced latest-wins position writes and immediate pointer-only writes.
// Write failures never propagate to playback; they are logged, journaled
// locally and replayed later.
type Persister struct {
	api      ProgressAPI
	journal  *journal.Journal
	debounce time.Duration
	interval time.Duration
	logger   *logger.Logger

	mu        sync.Mutex
	pending   *models.ProgressUpdate
	pendingBk string
	timer     *time.Timer
	lastFlush time.Time
	wg        sync.WaitGroup

	// now is swappable for tests
	now func() time.Time
}

// NewPersister creates a persister. journal may be nil when no local
// journaling is configured.
func NewPersister(api ProgressAPI, jrnl *journal.Journal, debounce, interval time.Duration) *Persister {
	log := logger.Get().Logger.With().
		Str("component", "persister").
		Logger()

	return &Persister{
		api:      api,
		journal:  jrnl,
		debounce: debounce,
		interval: interval,
		logger:   &logger.Logger{Logger: log},
		now:      time.Now,
	}
}

// QueuePosition schedules a position write. Writes queued within the debounce
// window coalesce and only the newest snapshot reaches the backend.
func (p *Persister) QueuePosition(bookID string, upd models.ProgressUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = &upd
	p.pendingBk = bookID
	if p.timer == nil {
		p.timer = time.AfterFunc(p.debounce, p.flushAsync)
	}
}

// Heartbeat queues a position write only when the steady-state cadence is
// due, so routine playback produces at most one write per interval.
func (p *Persister) Heartbeat(bookID string, upd models.ProgressUpdate) {
	p.mu.Lock()
	due := p.now().Sub(p.lastFlush) >= p.interval
	hasPending := p.pending != nil
	p.mu.Unlock()

	if due || hasPending {
		p.QueuePosition(bookID, upd)
	}
}

// Flush writes any pending position synchronously. File switches call this
// so the outgoing file's position is durable before the next file activates.
func (p *Persister) Flush() {
	bookID, upd, ok := p.takePending()
	if !ok {
		return
	}
	p.write(bookID, upd)
}

// flushAsync runs on the debounce timer goroutine
func (p *Persister) flushAsync() {
	bookID, upd, ok := p.takePending()
	if !ok {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.write(bookID, upd)
	}()
}

func (p *Persister) takePending() (string, models.ProgressUpdate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.pending == nil {
		return "", models.ProgressUpdate{}, false
	}
	upd := *p.pending
	bookID := p.pendingBk
	p.pending = nil
	p.lastFlush = p.now()
	return bookID, upd, true
}

// write performs one backend position write, journaling on failure
func (p *Persister) write(bookID string, upd models.ProgressUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := p.api.SaveProgress(ctx, bookID, upd)
	if err == nil {
		return
	}

	p.logger.Warn("Progress write failed", map[string]interface{}{
		"book_id":      bookID,
		"file_id":      upd.FileID,
		"current_time": upd.CurrentTime,
		"error":        err.Error(),
	})
	if p.journal != nil {
		if jerr := p.journal.Record(bookID, upd); jerr != nil {
			p.logger.Error("Failed to journal progress write", map[string]interface{}{
				"book_id": bookID,
				"file_id": upd.FileID,
				"error":   jerr.Error(),
			})
		}
	}
}

// SavePointer moves the last-active-file pointer. Independent of the position
// path: it fires on every file switch, even for files that never played, and
// never creates a progress record. Failures are logged and swallowed.
func (p *Persister) SavePointer(bookID, fileID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := p.api.SaveLastFile(ctx, bookID, fileID); err != nil {
			p.logger.Warn("Pointer write failed", map[string]interface{}{
				"book_id": bookID,
				"file_id": fileID,
				"error":   err.Error(),
			})
		}
	}()
}

// Resume returns the position a fresh load of the file should start at.
// Completed files restart at zero. Read failures start the file at zero
// rather than blocking playback.
func (p *Persister) Resume(ctx context.Context, bookID, fileID string) float64 {
	record, err := p.api.GetProgress(ctx, bookID, fileID)
	if err != nil {
		p.logger.Warn("Progress read failed, starting from zero", map[string]interface{}{
			"book_id": bookID,
			"file_id": fileID,
			"error":   err.Error(),
		})
		return 0
	}
	return record.ResumeTime()
}

// LastFile returns the book's last-active-file pointer, empty when unknown
func (p *Persister) LastFile(ctx context.Context, bookID string) string {
	fileID, err := p.api.GetLastFile(ctx, bookID)
	if err != nil {
		p.logger.Warn("Pointer read failed", map[string]interface{}{
			"book_id": bookID,
			"error":   err.Error(),
		})
		return ""
	}
	return fileID
}

// ReplayJournal pushes journaled writes to the backend, removing the rows
// that land. Called once on start; rows that still fail stay journaled.
func (p *Persister) ReplayJournal(ctx context.Context) {
	if p.journal == nil {
		return
	}
	rows, err := p.journal.Pending()
	if err != nil {
		p.logger.Error("Failed to read journal", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if len(rows) == 0 {
		return
	}

	replayed := 0
	for _, row := range rows {
		upd := models.ProgressUpdate{
			FileID:      row.FileID,
			CurrentTime: row.CurrentTime,
			Duration:    row.Duration,
		}
		if err := p.api.SaveProgress(ctx, row.BookID, upd); err != nil {
			p.logger.Warn("Journal replay write failed", map[string]interface{}{
				"book_id": row.BookID,
				"file_id": row.FileID,
				"error":   err.Error(),
			})
			continue
		}
		if err := p.journal.Remove(row.ID); err != nil {
			p.logger.Error("Failed to remove replayed journal row", map[string]interface{}{
				"id":    row.ID,
				"error": err.Error(),
			})
			continue
		}
		replayed++
	}
	p.logger.Info("Replayed journaled progress writes", map[string]interface{}{
		"replayed": replayed,
		"total":    len(rows),
	})
}

// Close flushes any pending write and waits for in-flight writes
func (p *Persister) Close() {
	p.Flush()
	p.wg.Wait()
}
