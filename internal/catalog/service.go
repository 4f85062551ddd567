package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipforge/clipforge-agent/internal/ffmpeg"
)

// ErrClipNotFound is returned by operations that need an existing clip.
var ErrClipNotFound = errors.New("clip not found")

const (
	workspaceKey = "workspace"

	thumbWidth  = 320
	thumbHeight = 180

	audioSampleRate = 16000
	audioChannels   = 1
	audioBitrate    = "128k"

	recordingPreset       = "fast"
	recordingCRF          = 23
	recordingAudioBitrate = "192k"
)

// Engine runs compiled transcode specs to completion.
type Engine interface {
	Run(ctx context.Context, spec ffmpeg.Spec) error
}

// MetadataProber reads container metadata from a media file.
type MetadataProber interface {
	Probe(ctx context.Context, path string) (*ffmpeg.Metadata, error)
}

// Dirs is the on-disk library layout under the data dir.
type Dirs struct {
	Clips      string
	Thumbnails string
	Edited     string
	Audio      string
	Recordings string
}

// Ensure creates the library directories.
func (d Dirs) Ensure() error {
	for _, dir := range []string{d.Clips, d.Thumbnails, d.Edited, d.Audio, d.Recordings} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create library dir %s: %w", dir, err)
		}
	}
	return nil
}

type CatalogService interface {
	ImportFile(ctx context.Context, path string) (*Clip, error)
	ListClips(ctx context.Context) ([]*Clip, error)
	GetClip(ctx context.Context, id string) (*Clip, error)
	RemoveClip(ctx context.Context, id string) error
	CountClips(ctx context.Context) (int, error)
	Probe(ctx context.Context, path string) (*ffmpeg.Metadata, error)
	TrimClip(ctx context.Context, id string, start, end float64) (*Clip, error)
	ExtractAudio(ctx context.Context, id string) (string, error)
	SaveRecording(ctx context.Context, name string, body io.Reader, convert bool) (*Clip, string, error)
	RegenerateThumbnails(ctx context.Context) (int, error)
	Workspace(ctx context.Context) (string, error)
	SaveWorkspace(ctx context.Context, blob string) error
	ResetWorkspace(ctx context.Context) error
}

type Service struct {
	repo   Repository
	engine Engine
	prober MetadataProber
	dirs   Dirs
	logger *slog.Logger
}

func NewService(repo Repository, engine Engine, prober MetadataProber, dirs Dirs, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, prober: prober, dirs: dirs, logger: logger}
}

func (s *Service) ImportFile(ctx context.Context, path string) (*Clip, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("file does not exist: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory")
	}
	if !IsVideoFile(absPath) {
		return nil, fmt.Errorf("unsupported file type %s", filepath.Ext(absPath))
	}

	// Importing a file the library already owns returns its row instead of
	// copying the file onto itself under a new name.
	if existing, err := s.repo.GetClipByPath(ctx, absPath); err == nil && existing != nil {
		return existing, nil
	}

	dest := uniqueDest(s.dirs.Clips, filepath.Base(absPath))
	if err := copyFile(absPath, dest); err != nil {
		return nil, fmt.Errorf("copy into library: %w", err)
	}

	clip, err := s.catalogFile(ctx, dest, filepath.Base(dest), ClipKindImport)
	if err != nil {
		os.Remove(dest)
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("clip imported", "clip_id", clip.ID, "filename", clip.Filename,
			"duration", clip.Duration)
	}
	return clip, nil
}

// catalogFile probes a file already placed in the library, grabs a
// best-effort thumbnail, and inserts the row.
func (s *Service) catalogFile(ctx context.Context, path, filename, kind string) (*Clip, error) {
	meta, err := s.prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", filename, err)
	}

	now := time.Now()
	clip := &Clip{
		ID:        NewID(),
		Filename:  filename,
		Path:      path,
		Kind:      kind,
		Duration:  meta.DurationSeconds,
		Width:     meta.Width,
		Height:    meta.Height,
		Codec:     meta.Codec,
		FrameRate: meta.FrameRate,
		BitRate:   meta.BitRate,
		SizeBytes: meta.SizeBytes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if thumb, err := s.generateThumbnail(ctx, clip); err == nil {
		clip.ThumbnailPath = thumb
	} else if s.logger != nil {
		s.logger.Warn("thumbnail generation failed", "clip_id", clip.ID, "error", err)
	}

	if err := s.repo.CreateClip(ctx, clip); err != nil {
		if clip.ThumbnailPath != "" {
			os.Remove(clip.ThumbnailPath)
		}
		return nil, err
	}
	return clip, nil
}

// generateThumbnail walks the seek ladder until a position yields a frame.
// Positions at or past the clip's end are skipped.
func (s *Service) generateThumbnail(ctx context.Context, clip *Clip) (string, error) {
	dest := filepath.Join(s.dirs.Thumbnails, clip.ID+".jpg")

	for _, pos := range thumbnailLadder(clip.Duration) {
		p := pos
		spec := ffmpeg.Spec{
			Input:       clip.Path,
			Output:      dest,
			SeekTo:      &p,
			Scale:       &ffmpeg.Scale{Width: thumbWidth, Height: thumbHeight, Mode: ffmpeg.ScaleCropFill},
			SingleFrame: true,
		}
		if err := s.engine.Run(ctx, spec); err != nil {
			continue
		}
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			return dest, nil
		}
	}
	return "", fmt.Errorf("no seek position produced a frame")
}

func thumbnailLadder(duration float64) []float64 {
	if duration <= 0 {
		return []float64{0}
	}
	var ladder []float64
	if duration > 1.0 {
		ladder = append(ladder, 1.0)
	}
	ladder = append(ladder, duration*0.1)
	if duration > 0.5 {
		ladder = append(ladder, 0.5)
	}
	return append(ladder, 0)
}

func (s *Service) ListClips(ctx context.Context) ([]*Clip, error) {
	return s.repo.ListClips(ctx)
}

func (s *Service) GetClip(ctx context.Context, id string) (*Clip, error) {
	return s.repo.GetClip(ctx, id)
}

func (s *Service) CountClips(ctx context.Context) (int, error) {
	return s.repo.CountClips(ctx)
}

func (s *Service) RemoveClip(ctx context.Context, id string) error {
	clip, err := s.repo.GetClip(ctx, id)
	if err != nil {
		return err
	}
	if clip == nil {
		return ErrClipNotFound
	}

	if err := s.repo.DeleteClip(ctx, id); err != nil {
		return err
	}
	s.removeClipFiles(clip)

	if s.logger != nil {
		s.logger.Info("clip removed", "clip_id", id)
	}
	return nil
}

func (s *Service) removeClipFiles(clip *Clip) {
	for _, p := range []string{clip.Path, clip.ThumbnailPath, clip.AudioPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && s.logger != nil {
			s.logger.Warn("failed to remove clip file", "path", p, "error", err)
		}
	}
}

func (s *Service) Probe(ctx context.Context, path string) (*ffmpeg.Metadata, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("file does not exist: %w", err)
	}
	return s.prober.Probe(ctx, absPath)
}

func (s *Service) TrimClip(ctx context.Context, id string, start, end float64) (*Clip, error) {
	clip, err := s.repo.GetClip(ctx, id)
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return nil, ErrClipNotFound
	}

	if start < 0 || end <= start {
		return nil, fmt.Errorf("invalid trim range [%g, %g]", start, end)
	}
	if clip.Duration > 0 && end > clip.Duration+0.001 {
		return nil, fmt.Errorf("trim end %g exceeds clip duration %g", end, clip.Duration)
	}

	outName := fmt.Sprintf("%s_trim_%s.mp4", stem(clip.Filename), NewID()[:8])
	outPath := filepath.Join(s.dirs.Edited, outName)

	spec := ffmpeg.Spec{
		Input:      clip.Path,
		Output:     outPath,
		Trim:       &ffmpeg.Trim{Start: start, Duration: end - start},
		StreamCopy: true,
	}
	if err := s.engine.Run(ctx, spec); err != nil {
		return nil, fmt.Errorf("trim %s: %w", clip.Filename, err)
	}
	if _, err := os.Stat(outPath); err != nil {
		return nil, &ffmpeg.OutputError{Path: outPath}
	}

	trimmed, err := s.catalogFile(ctx, outPath, outName, ClipKindEdit)
	if err != nil {
		os.Remove(outPath)
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("clip trimmed", "clip_id", id, "new_clip_id", trimmed.ID,
			"start", start, "end", end)
	}
	return trimmed, nil
}

func (s *Service) ExtractAudio(ctx context.Context, id string) (string, error) {
	clip, err := s.repo.GetClip(ctx, id)
	if err != nil {
		return "", err
	}
	if clip == nil {
		return "", ErrClipNotFound
	}

	if clip.AudioPath != "" {
		if _, err := os.Stat(clip.AudioPath); err == nil {
			return clip.AudioPath, nil
		}
	}

	outPath := filepath.Join(s.dirs.Audio, fmt.Sprintf("%s_%s.mp3", stem(clip.Filename), clip.ID[:8]))
	spec := ffmpeg.Spec{
		Input:  clip.Path,
		Output: outPath,
		AudioOnly: &ffmpeg.AudioExtract{
			SampleRate: audioSampleRate,
			Channels:   audioChannels,
			Bitrate:    audioBitrate,
		},
	}
	if err := s.engine.Run(ctx, spec); err != nil {
		return "", fmt.Errorf("extract audio from %s: %w", clip.Filename, err)
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", &ffmpeg.OutputError{Path: outPath}
	}

	if err := s.repo.UpdateClipAudioPath(ctx, clip.ID, outPath); err != nil && s.logger != nil {
		s.logger.Warn("failed to record audio path", "clip_id", clip.ID, "error", err)
	}

	if s.logger != nil {
		s.logger.Info("audio extracted", "clip_id", clip.ID, "path", outPath)
	}
	return outPath, nil
}

// SaveRecording stores an uploaded recording body. With convert set the
// recording is re-encoded to MP4, cataloged, and the original removed;
// otherwise the stored path is returned as-is.
func (s *Service) SaveRecording(ctx context.Context, name string, body io.Reader, convert bool) (*Clip, string, error) {
	name = SanitizeName(name, 64)
	if name == "" {
		name = "recording_" + time.Now().Format("20060102_150405")
	}
	if !strings.HasSuffix(strings.ToLower(name), ".webm") {
		name += ".webm"
	}

	rawPath := uniqueDest(s.dirs.Recordings, name)
	if err := writeStream(rawPath, body); err != nil {
		return nil, "", fmt.Errorf("store recording: %w", err)
	}

	if !convert {
		if s.logger != nil {
			s.logger.Info("recording stored", "path", rawPath)
		}
		return nil, rawPath, nil
	}

	crf := recordingCRF
	mp4Name := stem(filepath.Base(rawPath)) + ".mp4"
	outPath := uniqueDest(s.dirs.Clips, mp4Name)

	spec := ffmpeg.Spec{
		Input:        rawPath,
		Output:       outPath,
		Scale:        &ffmpeg.Scale{Mode: ffmpeg.ScaleEvenDims},
		VideoCodec:   "libx264",
		Preset:       recordingPreset,
		CRF:          &crf,
		PixelFormat:  "yuv420p",
		AudioCodec:   "aac",
		AudioBitrate: recordingAudioBitrate,
	}
	if err := s.engine.Run(ctx, spec); err != nil {
		return nil, "", fmt.Errorf("convert recording: %w", err)
	}
	if _, err := os.Stat(outPath); err != nil {
		return nil, "", &ffmpeg.OutputError{Path: outPath}
	}

	clip, err := s.catalogFile(ctx, outPath, filepath.Base(outPath), ClipKindRecording)
	if err != nil {
		os.Remove(outPath)
		return nil, "", err
	}

	if err := os.Remove(rawPath); err != nil && s.logger != nil {
		s.logger.Warn("failed to remove raw recording", "path", rawPath, "error", err)
	}

	if s.logger != nil {
		s.logger.Info("recording converted", "clip_id", clip.ID, "path", outPath)
	}
	return clip, "", nil
}

func (s *Service) RegenerateThumbnails(ctx context.Context) (int, error) {
	clips, err := s.repo.ListClips(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, clip := range clips {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}

		if clip.ThumbnailPath != "" {
			if _, err := os.Stat(clip.ThumbnailPath); err == nil {
				continue
			}
		}

		thumb, err := s.generateThumbnail(ctx, clip)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("thumbnail regeneration failed", "clip_id", clip.ID, "error", err)
			}
			continue
		}
		if err := s.repo.UpdateClipThumbnail(ctx, clip.ID, thumb); err != nil {
			return count, err
		}
		count++
	}

	if s.logger != nil {
		s.logger.Info("thumbnails regenerated", "count", count)
	}
	return count, nil
}

func (s *Service) Workspace(ctx context.Context) (string, error) {
	return s.repo.GetConfig(ctx, workspaceKey)
}

func (s *Service) SaveWorkspace(ctx context.Context, blob string) error {
	return s.repo.SetConfig(ctx, workspaceKey, blob)
}

// ResetWorkspace drops the saved workspace and clears the clip library,
// files included.
func (s *Service) ResetWorkspace(ctx context.Context) error {
	if err := s.repo.DeleteConfig(ctx, workspaceKey); err != nil {
		return err
	}

	clips, err := s.repo.ListClips(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteAllClips(ctx); err != nil {
		return err
	}
	for _, clip := range clips {
		s.removeClipFiles(clip)
	}

	if s.logger != nil {
		s.logger.Info("workspace reset", "clips_removed", len(clips))
	}
	return nil
}

// uniqueDest returns dir/filename, or a uuid-suffixed variant when that
// name is already taken.
func uniqueDest(dir, filename string) string {
	dest := filepath.Join(dir, filename)
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return dest
	}
	ext := filepath.Ext(filename)
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", strings.TrimSuffix(filename, ext), NewID()[:8], ext))
}

func stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeStream(dest, in)
}

func writeStream(dest string, r io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
