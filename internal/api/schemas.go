package api

import (
	"time"

	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/ffmpeg"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State      string         `json:"state"`
	LastError  string         `json:"last_error,omitempty"`
	ClipsCount int            `json:"clips_count"`
	JobsQueued int            `json:"jobs_queued"`
	ActiveJob  *JobResponse   `json:"active_job,omitempty"`
	Tools      *ToolsResponse `json:"tools,omitempty"`
}

type ToolsResponse struct {
	Ready    bool   `json:"ready"`
	FFmpeg   string `json:"ffmpeg,omitempty"`
	FFprobe  string `json:"ffprobe,omitempty"`
	Version  string `json:"version,omitempty"`
	ProbedAt string `json:"probed_at,omitempty"`
}

type ImportRequest struct {
	Path string `json:"path"`
}

type TrimRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type AudioResponse struct {
	Path string `json:"path"`
}

type RegenerateResponse struct {
	Count int `json:"count"`
}

type ProbeRequest struct {
	Path string `json:"path"`
}

type ProbeResponse struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Codec           string  `json:"codec"`
	FrameRate       float64 `json:"frame_rate"`
	BitRate         int64   `json:"bit_rate"`
	SizeBytes       int64   `json:"size_bytes"`
}

type RecordingResponse struct {
	Clip *ClipResponse `json:"clip,omitempty"`
	Path string        `json:"path"`
}

type ClipResponse struct {
	ID              string  `json:"id"`
	Filename        string  `json:"filename"`
	Path            string  `json:"path"`
	ThumbnailPath   string  `json:"thumbnail_path,omitempty"`
	AudioPath       string  `json:"audio_path,omitempty"`
	Kind            string  `json:"kind"`
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Codec           string  `json:"codec"`
	FrameRate       float64 `json:"frame_rate"`
	BitRate         int64   `json:"bit_rate"`
	SizeBytes       int64   `json:"size_bytes"`
	CreatedAt       string  `json:"created_at"`
}

type ClipsResponse struct {
	Clips []ClipResponse `json:"clips"`
}

type ExportClipRequest struct {
	ClipID string   `json:"clip_id,omitempty"`
	Path   string   `json:"path,omitempty"`
	Start  float64  `json:"start"`
	End    float64  `json:"end"`
	Volume *float64 `json:"volume,omitempty"`
	Muted  bool     `json:"muted,omitempty"`
}

type ExportRequest struct {
	Clips      []ExportClipRequest `json:"clips"`
	Resolution string              `json:"resolution"`
	OutputPath string              `json:"output_path"`
}

type JobResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	ClipCount  int    `json:"clip_count"`
	Resolution string `json:"resolution"`
	OutputPath string `json:"output_path"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ClipToResponse(c *catalog.Clip) ClipResponse {
	return ClipResponse{
		ID:              c.ID,
		Filename:        c.Filename,
		Path:            c.Path,
		ThumbnailPath:   c.ThumbnailPath,
		AudioPath:       c.AudioPath,
		Kind:            c.Kind,
		DurationSeconds: c.Duration,
		Width:           c.Width,
		Height:          c.Height,
		Codec:           c.Codec,
		FrameRate:       c.FrameRate,
		BitRate:         c.BitRate,
		SizeBytes:       c.SizeBytes,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j *catalog.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Status:     j.Status,
		Progress:   j.Progress,
		ClipCount:  j.ClipCount,
		Resolution: j.Resolution,
		OutputPath: j.OutputPath,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}

func MetadataToResponse(m *ffmpeg.Metadata) ProbeResponse {
	return ProbeResponse{
		DurationSeconds: m.DurationSeconds,
		Width:           m.Width,
		Height:          m.Height,
		Codec:           m.Codec,
		FrameRate:       m.FrameRate,
		BitRate:         m.BitRate,
		SizeBytes:       m.SizeBytes,
	}
}

func CapabilitiesToResponse(c *ffmpeg.Capabilities) *ToolsResponse {
	if c == nil {
		return nil
	}
	resp := &ToolsResponse{
		Ready:   c.Ready(),
		FFmpeg:  c.FFmpegPath,
		FFprobe: c.FFprobePath,
		Version: c.Version,
	}
	if !c.ProbedAt.IsZero() {
		resp.ProbedAt = c.ProbedAt.Format(time.RFC3339)
	}
	return resp
}
