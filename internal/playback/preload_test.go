package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomeshelf/playback/internal/api/content"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	errs    map[string]error
	failN   map[string]int
	failErr error
	block   chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		errs:  make(map[string]error),
		failN: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, bookID, fileID string) (*content.FileContent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fileID)
	block := f.block
	err := f.errs[fileID]
	if err == nil && f.failN[fileID] > 0 {
		f.failN[fileID]--
		err = f.failErr
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &content.FileContent{
		Data:      []byte("audio:" + fileID),
		MediaType: "audio/mpeg",
		FetchedAt: time.Now(),
	}, nil
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func TestPreloaderWarmsUpcomingWindow(t *testing.T) {
	ff := newFakeFetcher()
	p := NewPreloader(ff, nil, 2, time.Millisecond)
	defer p.Close()

	p.Activate(testBook(), "f1")

	require.Eventually(t, func() bool {
		return p.Cached("f2") && p.Cached("f3")
	}, time.Second, 5*time.Millisecond)

	// The immediate successor was fetched first
	calls := ff.fetched()
	require.NotEmpty(t, calls)
	assert.Equal(t, "f2", calls[0])
}

func TestPreloaderTakeRemovesEntry(t *testing.T) {
	ff := newFakeFetcher()
	p := NewPreloader(ff, nil, 1, time.Millisecond)
	defer p.Close()

	p.Activate(testBook(), "f1")
	require.Eventually(t, func() bool { return p.Cached("f2") }, time.Second, 5*time.Millisecond)

	fc, ok := p.Take("f2")
	require.True(t, ok)
	assert.Equal(t, []byte("audio:f2"), fc.Data)

	_, ok = p.Take("f2")
	assert.False(t, ok)
}

func TestPreloaderEvictsPassedFiles(t *testing.T) {
	ff := newFakeFetcher()
	p := NewPreloader(ff, nil, 2, time.Millisecond)
	defer p.Close()

	p.Activate(testBook(), "f1")
	require.Eventually(t, func() bool {
		return p.Cached("f2") && p.Cached("f3")
	}, time.Second, 5*time.Millisecond)

	// Moving to f3 drops everything at or before it
	p.Activate(testBook(), "f3")
	assert.False(t, p.Cached("f2"))
	assert.False(t, p.Cached("f3"))
}

func TestPreloaderLastFileWarmsNothing(t *testing.T) {
	ff := newFakeFetcher()
	p := NewPreloader(ff, nil, 2, time.Millisecond)
	defer p.Close()

	p.Activate(testBook(), "f3")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, ff.fetched())
}

func TestPreloaderFailureIsSilent(t *testing.T) {
	ff := newFakeFetcher()
	ff.errs["f2"] = errors.New("fetch failed")
	p := NewPreloader(ff, nil, 2, time.Millisecond)
	defer p.Close()

	p.Activate(testBook(), "f1")

	// f3 still warms even though f2 failed; f2 stays cold for the on-demand
	// fallback
	require.Eventually(t, func() bool { return p.Cached("f3") }, time.Second, 5*time.Millisecond)
	assert.False(t, p.Cached("f2"))
	_, ok := p.Take("f2")
	assert.False(t, ok)
}

func TestPreloaderDoesNotRefetchCached(t *testing.T) {
	ff := newFakeFetcher()
	p := NewPreloader(ff, nil, 1, time.Millisecond)
	defer p.Close()

	p.Activate(testBook(), "f1")
	require.Eventually(t, func() bool { return p.Cached("f2") }, time.Second, 5*time.Millisecond)

	p.Activate(testBook(), "f1")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"f2"}, ff.fetched())
}

func TestPreloaderNewBookClearsCache(t *testing.T) {
	ff := newFakeFetcher()
	p := NewPreloader(ff, nil, 1, time.Millisecond)
	defer p.Close()

	p.Activate(testBook(), "f1")
	require.Eventually(t, func() bool { return p.Cached("f2") }, time.Second, 5*time.Millisecond)

	other := testBook()
	other.ID = "book2"
	p.Activate(other, "f1")

	// Entries from the previous book are gone immediately
	_, ok := p.Take("f2")
	if ok {
		// The new book's own f2 may have landed already; accept only fresh
		// content fetched under book2
		assert.GreaterOrEqual(t, len(ff.fetched()), 2)
	}
}

func TestPreloaderDisabled(t *testing.T) {
	ff := newFakeFetcher()
	p := NewPreloader(ff, nil, 0, time.Millisecond)
	defer p.Close()

	p.Activate(testBook(), "f1")
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, ff.fetched())
}
