package models

import (
	"sort"

	"github.com/samber/lo"
)

// Chapter is a named span within an audio file
type Chapter struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// AudioFile describes one file of a multi-file audiobook, as supplied by the
// backend manifest. Index is the ordinal position within the book.
type AudioFile struct {
	ID        string    `json:"id"`
	Index     int       `json:"index"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	MediaType string    `json:"mediaType"`
	Duration  float64   `json:"duration,omitempty"`
	Chapters  []Chapter `json:"chapters,omitempty"`
}

// ChapterAt returns the chapter containing the given time, if any
func (f *AudioFile) ChapterAt(seconds float64) (Chapter, bool) {
	return lo.Find(f.Chapters, func(c Chapter) bool {
		return seconds >= c.Start && seconds < c.End
	})
}

// Audiobook is the manifest for one book: its ordered audio files
type Audiobook struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Files []AudioFile `json:"files"`
}

// SortFiles orders the manifest files by their ordinal index. The backend
// usually returns them ordered already but the engine must not depend on it.
func (b *Audiobook) SortFiles() {
	sort.SliceStable(b.Files, func(i, j int) bool {
		return b.Files[i].Index < b.Files[j].Index
	})
}

// FileByID returns the file with the given identifier
func (b *Audiobook) FileByID(fileID string) (AudioFile, bool) {
	return lo.Find(b.Files, func(f AudioFile) bool {
		return f.ID == fileID
	})
}

// FileAfter returns the file that follows the given file in playback order
func (b *Audiobook) FileAfter(fileID string) (AudioFile, bool) {
	cur, ok := b.FileByID(fileID)
	if !ok {
		return AudioFile{}, false
	}
	var next AudioFile
	found := false
	for _, f := range b.Files {
		if f.Index > cur.Index && (!found || f.Index < next.Index) {
			next = f
			found = true
		}
	}
	return next, found
}

// FileBefore returns the file that precedes the given file in playback order
func (b *Audiobook) FileBefore(fileID string) (AudioFile, bool) {
	cur, ok := b.FileByID(fileID)
	if !ok {
		return AudioFile{}, false
	}
	var prev AudioFile
	found := false
	for _, f := range b.Files {
		if f.Index < cur.Index && (!found || f.Index > prev.Index) {
			prev = f
			found = true
		}
	}
	return prev, found
}

// IsLastFile reports whether the given file is the final file of the book
func (b *Audiobook) IsLastFile(fileID string) bool {
	_, hasNext := b.FileAfter(fileID)
	cur, ok := b.FileByID(fileID)
	return ok && cur.ID != "" && !hasNext
}
