package models

// ProgressRecord is the durable per-(user, book, file) playback position as
// stored by the backend progress service.
type ProgressRecord struct {
	FileID      string  `json:"fileId"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	Progress    float64 `json:"progress"`
	LastUpdate  int64   `json:"lastUpdate,omitempty"`
}

// Completed reports whether the record represents a finished file. A finished
// file restarts from zero on the next load instead of resuming.
func (r *ProgressRecord) Completed() bool {
	if r.Progress >= 100 {
		return true
	}
	if r.Progress == 0 && r.Duration > 0 {
		return r.CurrentTime/r.Duration >= 1
	}
	return false
}

// ResumeTime returns the position a fresh load of this file should start at
func (r *ProgressRecord) ResumeTime() float64 {
	if r == nil || r.Completed() {
		return 0
	}
	return r.CurrentTime
}

// ProgressUpdate is the position-write body for the progress endpoint
type ProgressUpdate struct {
	FileID      string  `json:"fileId"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
}

// PointerUpdate is the pointer-only write body. It moves the last-active-file
// pointer without creating a progress record for the file.
type PointerUpdate struct {
	FileID               string `json:"fileId"`
	UpdateLastFileIDOnly bool   `json:"updateLastFileIdOnly"`
}
