package playback

import (
	"github.com/tomeshelf/playback/internal/models"
)

// Advance is the continuation decision after a file finishes
type Advance string

const (
	// AdvanceNone means nothing to do (no session or unknown file)
	AdvanceNone Advance = "none"
	// AdvanceLoop means restart the same file from zero
	AdvanceLoop Advance = "loop"
	// AdvanceNext means activate the following file and keep playing
	AdvanceNext Advance = "next"
	// AdvanceComplete means the book is finished; park at the start of the
	// final file and offer replay
	AdvanceComplete Advance = "complete"
)

// NextAction decides what happens after the given file finishes. Loop-one
// takes precedence over advancing.
func NextAction(book *models.Audiobook, fileID string, loop bool) (Advance, models.AudioFile) {
	if book == nil {
		return AdvanceNone, models.AudioFile{}
	}
	cur, ok := book.FileByID(fileID)
	if !ok {
		return AdvanceNone, models.AudioFile{}
	}
	if loop {
		return AdvanceLoop, cur
	}
	if next, ok := book.FileAfter(fileID); ok {
		return AdvanceNext, next
	}
	return AdvanceComplete, cur
}
