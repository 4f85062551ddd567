// Package export turns a clip timeline into a single rendered file. The
// Exporter runs the transcode phases and maps their progress onto one
// 0-100 bar; the Manager queues jobs, persists their state, and fans
// progress out to subscribers.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge-agent/internal/ffmpeg"
)

// Multi-clip exports split the progress bar: the per-clip transcodes share
// the first 90 points weighted by clip duration, the final concat takes
// the last 10.
const (
	clipPhaseSpan   = 90
	concatPhaseSpan = 10
)

var concatWindow = ffmpeg.Window{Offset: clipPhaseSpan, Range: concatPhaseSpan}

// The concat phase stream-copies and outruns realtime by a wide margin.
// Shrinking its nominal duration keeps the tail of the bar moving instead
// of crawling; the tracker caps at 100 regardless.
const concatDurationFactor = 0.1

// Runner is the slice of the transcoder executor the exporter drives.
type Runner interface {
	RunProgress(ctx context.Context, spec ffmpeg.Spec, window ffmpeg.Window, totalSeconds float64, emit func(int)) error
}

// DurationProber resolves source durations for untrimmed clips so the
// progress windows can be weighted.
type DurationProber interface {
	Probe(ctx context.Context, path string) (*ffmpeg.Metadata, error)
}

// EncodeOptions are the encoder knobs applied to every exported clip.
type EncodeOptions struct {
	Preset       string
	CRF          int
	AudioBitrate string
}

// DefaultEncodeOptions returns the profile used when the config does not
// override it.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{Preset: "medium", CRF: 23, AudioBitrate: "192k"}
}

// Exporter renders export requests. It owns no job state; each Export
// call is independent and its scratch space lives in a per-call directory
// that is always removed before returning.
type Exporter struct {
	runner     Runner
	prober     DurationProber
	scratchDir string
	enc        EncodeOptions
	logger     *slog.Logger
}

func NewExporter(runner Runner, prober DurationProber, scratchDir string, enc EncodeOptions, logger *slog.Logger) *Exporter {
	def := DefaultEncodeOptions()
	if enc.Preset == "" {
		enc.Preset = def.Preset
	}
	if enc.CRF <= 0 {
		enc.CRF = def.CRF
	}
	if enc.AudioBitrate == "" {
		enc.AudioBitrate = def.AudioBitrate
	}
	return &Exporter{runner: runner, prober: prober, scratchDir: scratchDir, enc: enc, logger: logger}
}

// Validate rejects a request before any file or process work starts. It
// is cheap enough to call on the submission path.
func (e *Exporter) Validate(req Request) error {
	if len(req.Clips) == 0 {
		return fmt.Errorf("no clips provided for export")
	}
	if _, _, err := Resolve(req.Resolution); err != nil {
		return err
	}
	if err := validateOutputPath(req.OutputPath); err != nil {
		return err
	}
	n := len(req.Clips)
	for i, c := range req.Clips {
		if c.Path == "" {
			return fmt.Errorf("clip %d/%d: path is empty", i+1, n)
		}
		if _, err := os.Stat(c.Path); err != nil {
			return fmt.Errorf("clip %d/%d: clip not found: %s", i+1, n, c.Path)
		}
		if c.Start < 0 {
			return fmt.Errorf("clip %d/%d: start time %v is negative", i+1, n, c.Start)
		}
		if c.End < 0 {
			return fmt.Errorf("clip %d/%d: end time %v is negative", i+1, n, c.End)
		}
		if (c.Start > 0 || c.End > 0) && c.End <= c.Start {
			return fmt.Errorf("clip %d/%d: invalid time range %v..%v", i+1, n, c.Start, c.End)
		}
	}
	return nil
}

// Export renders the request and returns the output path. Progress events
// in 0-100 are delivered through emit; the final 100 arrives before Export
// returns on success. Cancellation is honored between phases and kills the
// running transcode.
func (e *Exporter) Export(ctx context.Context, req Request, emit func(int)) (string, error) {
	if err := e.Validate(req); err != nil {
		return "", err
	}
	width, height, err := Resolve(req.Resolution)
	if err != nil {
		return "", err
	}

	n := len(req.Clips)
	durations := make([]float64, n)
	var total float64
	for i, c := range req.Clips {
		var src float64
		if !c.trimmed() {
			meta, err := e.prober.Probe(ctx, c.Path)
			if err != nil {
				return "", fmt.Errorf("clip %d/%d: %w", i+1, n, err)
			}
			src = meta.DurationSeconds
		}
		durations[i] = c.duration(src)
		total += durations[i]
	}

	if e.logger != nil {
		e.logger.Info("starting export",
			"clips", n, "resolution", req.Resolution, "duration_s", total, "output", req.OutputPath)
	}

	if n == 1 {
		spec := e.clipSpec(req.Clips[0], width, height, req.OutputPath)
		if err := e.runner.RunProgress(ctx, spec, ffmpeg.FullWindow, durations[0], emit); err != nil {
			return "", err
		}
		return req.OutputPath, nil
	}

	scratch := filepath.Join(e.scratchDir, "export-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil && e.logger != nil {
			e.logger.Warn("scratch cleanup failed", "dir", scratch, "error", err)
		}
	}()

	emit(0)

	parts := make([]string, 0, n)
	var completed float64
	for i, c := range req.Clips {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		part := filepath.Join(scratch, fmt.Sprintf("clip_%03d.mp4", i))
		spec := e.clipSpec(c, width, height, part)
		window := phaseWindow(i, n, durations[i], completed, total)
		if err := e.runner.RunProgress(ctx, spec, window, durations[i], emit); err != nil {
			return "", fmt.Errorf("process clip %d/%d: %w", i+1, n, err)
		}
		completed += durations[i]
		parts = append(parts, part)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	list := filepath.Join(scratch, "concat.txt")
	if err := writeConcatList(list, parts); err != nil {
		return "", err
	}
	concat := ffmpeg.Spec{
		ConcatList: list,
		Output:     req.OutputPath,
		StreamCopy: true,
		Progress:   true,
	}
	if err := e.runner.RunProgress(ctx, concat, concatWindow, total*concatDurationFactor, emit); err != nil {
		return "", fmt.Errorf("concat clips: %w", err)
	}

	if e.logger != nil {
		e.logger.Info("export complete", "output", req.OutputPath)
	}
	return req.OutputPath, nil
}

// phaseWindow maps clip i's transcode onto its slice of the clip phase
// span, weighted by duration. Truncation keeps successive offsets
// non-decreasing. Unknown durations fall back to an equal split.
func phaseWindow(i, n int, duration, completed, total float64) ffmpeg.Window {
	if total <= 0 {
		share := clipPhaseSpan / n
		return ffmpeg.Window{Offset: i * share, Range: share}
	}
	return ffmpeg.Window{
		Offset: int(completed / total * clipPhaseSpan),
		Range:  int(duration / total * clipPhaseSpan),
	}
}

func (e *Exporter) clipSpec(c ClipSpec, width, height int, output string) ffmpeg.Spec {
	crf := e.enc.CRF
	spec := ffmpeg.Spec{
		Input:        c.Path,
		Output:       output,
		Scale:        &ffmpeg.Scale{Width: width, Height: height, Mode: ffmpeg.ScalePad},
		VideoCodec:   "libx264",
		Preset:       e.enc.Preset,
		CRF:          &crf,
		AudioCodec:   "aac",
		AudioBitrate: e.enc.AudioBitrate,
		Muted:        c.Muted,
		Progress:     true,
	}
	if c.trimmed() {
		spec.Trim = &ffmpeg.Trim{Start: c.Start, Duration: c.End - c.Start}
	}
	if c.Volume != nil {
		v := ffmpeg.ClampVolume(*c.Volume)
		spec.Volume = &v
	}
	return spec
}
