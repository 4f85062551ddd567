package catalog

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clip is one entry in the on-disk library. Path points at the stored
// copy under the data dir, never at the file the user imported from.
type Clip struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	Path          string    `json:"path"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	AudioPath     string    `json:"audio_path,omitempty"`
	Kind          string    `json:"kind"`
	Duration      float64   `json:"duration_seconds"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Codec         string    `json:"codec"`
	FrameRate     float64   `json:"frame_rate"`
	BitRate       int64     `json:"bit_rate"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	ClipKindImport    = "import"
	ClipKindRecording = "recording"
	ClipKindEdit      = "edit"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCanceled  = "canceled"
)

// Job is a queued or finished export.
type Job struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	ClipCount  int       `json:"clip_count"`
	Resolution string    `json:"resolution"`
	OutputPath string    `json:"output_path"`
	Request    string    `json:"-"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Terminal reports whether the job can no longer change state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// VideoExtensions are the container formats the importer accepts.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
}

func NewID() string {
	return uuid.NewString()
}

func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}
