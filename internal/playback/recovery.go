package playback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/tomeshelf/playback/internal/api/content"
	"github.com/tomeshelf/playback/internal/platform"
)

// FailureClass buckets playback failures by how the engine should react
type FailureClass string

const (
	// ClassAborted means the load was interrupted on purpose, usually by a
	// newer file selection. Never surfaced, never retried.
	ClassAborted FailureClass = "aborted"
	// ClassNetwork means the content could not be fetched. Retried within
	// the budget unless the runtime is known to be offline.
	ClassNetwork FailureClass = "network"
	// ClassDecode means the bytes arrived but cannot be played. Retrying
	// cannot help.
	ClassDecode FailureClass = "decode"
	// ClassAuth means the session token was rejected. Fatal, the whole
	// session needs reauthentication.
	ClassAuth FailureClass = "auth"
)

// Classify maps an error to its failure class
func Classify(err error) FailureClass {
	switch {
	case errors.Is(err, context.Canceled):
		return ClassAborted
	case errors.Is(err, content.ErrUnauthorized):
		return ClassAuth
	case errors.Is(err, platform.ErrUnsupportedMedia):
		return ClassDecode
	case errors.Is(err, context.DeadlineExceeded):
		return ClassNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassNetwork
	}

	// Unknown failures get the retryable treatment
	return ClassNetwork
}

// Surfaced reports whether a failure of this class should be shown to the
// listener at all.
func (c FailureClass) Surfaced() bool {
	return c != ClassAborted
}

// Retryable reports whether another attempt can possibly succeed
func (c FailureClass) Retryable() bool {
	return c == ClassNetwork
}

// FileError is a classified failure tied to one audio file
type FileError struct {
	FileID string
	Class  FailureClass
	Err    error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s: %s: %v", e.FileID, e.Class, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// NewFileError wraps and classifies a failure for one file
func NewFileError(fileID string, err error) *FileError {
	return &FileError{FileID: fileID, Class: Classify(err), Err: err}
}

// Policy decides how hard to fight for a file. Automatic continuations get a
// generous budget because nobody is watching; a human pressing play gets a
// fast answer instead.
type Policy struct {
	UserRetryLimit        int
	AutoAdvanceRetryLimit int
	Backoff               time.Duration

	// Offline reports whether the runtime knows it has no connectivity.
	// Optional; nil means always assume we might be online.
	Offline func() bool
}

// Budget returns the retry limit for the given trigger
func (p *Policy) Budget(auto bool) int {
	if auto {
		return p.AutoAdvanceRetryLimit
	}
	return p.UserRetryLimit
}

// ShouldRetry reports whether the given attempt (zero-based) should be tried
// again after a failure of the given class.
func (p *Policy) ShouldRetry(class FailureClass, attempt int, auto bool) bool {
	if !class.Retryable() {
		return false
	}
	if p.Offline != nil && p.Offline() {
		return false
	}
	return attempt < p.Budget(auto)
}

// BackoffFor returns the delay before the given retry attempt (zero-based)
func (p *Policy) BackoffFor(attempt int) time.Duration {
	d := p.Backoff
	if d <= 0 {
		d = time.Second
	}
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}
