// Package ffmpeg drives the external transcoder: it compiles declarative
// transcode specs into argument lists, executes them with or without
// progress reporting, probes media metadata, and resolves the toolchain.
package ffmpeg

import (
	"errors"
	"fmt"
	"strconv"
)

// ScaleMode selects how a clip is fitted to the target dimensions.
type ScaleMode int

const (
	// ScalePlain stretches to the exact dimensions (or preserves aspect
	// with an even height when Height is zero).
	ScalePlain ScaleMode = iota
	// ScalePad letterboxes: fit inside the box, pad the rest black.
	ScalePad
	// ScaleCropFill covers the box and crops the overflow from center.
	ScaleCropFill
	// ScaleEvenDims only rounds both dimensions down to even values.
	ScaleEvenDims
)

// Trim selects a time range of the input, in seconds.
type Trim struct {
	Start    float64
	Duration float64
}

// Scale describes the target dimensions and fit mode.
type Scale struct {
	Width  int
	Height int
	Mode   ScaleMode
}

// Crop extracts a region. Without offsets the region is centered using
// resolution-independent expressions.
type Crop struct {
	Width   int
	Height  int
	OffsetX *int
	OffsetY *int
}

// RawInput reads raw video frames instead of a container. The spec's Input
// names the frame source, usually a file or "pipe:0".
type RawInput struct {
	PixelFormat string
	Width       int
	Height      int
	Framerate   int
}

// AudioExtract drops the video stream and transcodes audio only.
type AudioExtract struct {
	SampleRate int
	Channels   int
	Bitrate    string
}

// Spec is an immutable description of one transcoder invocation. Callers
// assemble a value, Validate rejects inconsistent field combinations, and
// Args compiles the ordered argument list. Compilation is pure: the same
// spec always yields the same arguments.
type Spec struct {
	Input  string
	Output string

	Trim       *Trim
	SeekTo     *float64 // single-frame seek position; wins over Trim.Start
	Scale      *Scale
	Crop       *Crop
	RawInput   *RawInput
	ConcatList string
	StreamCopy bool

	VideoCodec   string
	Preset       string
	CRF          *int
	PixelFormat  string
	AudioCodec   string
	AudioBitrate string

	Muted  bool
	Volume *float64

	AudioOnly *AudioExtract

	SingleFrame bool
	Progress    bool
}

// Validate checks field combinations. Semantic validation of caller inputs
// (file existence, time ordering against clip length) belongs to the
// orchestrator, before any process is spawned.
func (s Spec) Validate() error {
	if s.Output == "" {
		return errors.New("spec: output path required")
	}
	if s.ConcatList != "" {
		if s.Input != "" {
			return errors.New("spec: concat and input are mutually exclusive")
		}
		if s.Trim != nil || s.SeekTo != nil {
			return errors.New("spec: concat and trim/seek are mutually exclusive")
		}
		if s.Scale != nil || s.Crop != nil {
			return errors.New("spec: concat and video filters are mutually exclusive")
		}
		if s.Muted || s.Volume != nil {
			return errors.New("spec: concat and audio filters are mutually exclusive")
		}
		if s.RawInput != nil || s.AudioOnly != nil || s.SingleFrame {
			return errors.New("spec: concat admits no other input or extraction modes")
		}
		return nil
	}
	if s.Input == "" {
		return errors.New("spec: input path required")
	}
	if s.Trim != nil {
		if s.Trim.Start < 0 {
			return fmt.Errorf("spec: trim start %v is negative", s.Trim.Start)
		}
		if s.Trim.Duration <= 0 {
			return fmt.Errorf("spec: trim duration %v must be positive", s.Trim.Duration)
		}
	}
	if s.Scale != nil {
		if s.Scale.Mode != ScaleEvenDims && s.Scale.Width <= 0 {
			return errors.New("spec: scale width required")
		}
		if (s.Scale.Mode == ScalePad || s.Scale.Mode == ScaleCropFill) && s.Scale.Height <= 0 {
			return errors.New("spec: scale height required for pad and crop-to-fill modes")
		}
		if s.Scale.Mode == ScaleCropFill && s.Crop != nil {
			return errors.New("spec: crop-to-fill already crops; explicit crop not allowed")
		}
	}
	if s.Crop != nil && (s.Crop.Width <= 0 || s.Crop.Height <= 0) {
		return errors.New("spec: crop dimensions required")
	}
	if s.StreamCopy && (s.VideoCodec != "" || s.CRF != nil || s.Preset != "") {
		return errors.New("spec: stream copy and encode profile are mutually exclusive")
	}
	if s.AudioOnly != nil {
		if s.Scale != nil || s.Crop != nil || s.RawInput != nil || s.StreamCopy || s.SingleFrame {
			return errors.New("spec: audio extraction admits no video options")
		}
	}
	return nil
}

// Args compiles the spec into the transcoder's argument list. The token
// order is load-bearing: seek flags precede the input for fast seeking,
// filters precede codec flags, and the overwrite+output pair comes last.
func (s Spec) Args() []string {
	var args []string

	if s.ConcatList != "" {
		args = append(args, "-f", "concat", "-safe", "0", "-i", s.ConcatList)
	} else {
		if s.SeekTo != nil {
			args = append(args, "-ss", formatFloat(*s.SeekTo))
		} else if s.Trim != nil {
			args = append(args, "-ss", formatFloat(s.Trim.Start))
		}
		if s.Trim != nil {
			args = append(args, "-t", formatFloat(s.Trim.Duration))
		}

		if s.RawInput != nil {
			args = append(args, "-f", "rawvideo",
				"-pixel_format", s.RawInput.PixelFormat,
				"-video_size", fmt.Sprintf("%dx%d", s.RawInput.Width, s.RawInput.Height),
				"-framerate", strconv.Itoa(s.RawInput.Framerate),
				"-i", s.Input)
		} else {
			args = append(args, "-i", s.Input)
		}

		if vf := videoFilter(s); vf != "" {
			args = append(args, "-vf", vf)
		}
		if af := audioFilter(s); af != "" {
			args = append(args, "-af", af)
		}
	}

	switch {
	case s.StreamCopy:
		if audioFilter(s) != "" {
			// Copy cannot coexist with an audio filter; keep the video
			// stream cheap and re-encode audio only.
			args = append(args, "-c:v", "copy", "-c:a", "aac")
		} else {
			args = append(args, "-c", "copy")
		}
		args = append(args, "-avoid_negative_ts", "make_zero")
	case s.AudioOnly != nil:
		args = append(args, "-vn",
			"-ar", strconv.Itoa(s.AudioOnly.SampleRate),
			"-ac", strconv.Itoa(s.AudioOnly.Channels))
		if s.AudioOnly.Bitrate != "" {
			args = append(args, "-b:a", s.AudioOnly.Bitrate)
		}
	default:
		if s.VideoCodec != "" {
			args = append(args, "-c:v", s.VideoCodec)
		}
		if s.Preset != "" {
			args = append(args, "-preset", s.Preset)
		}
		if s.CRF != nil {
			args = append(args, "-crf", strconv.Itoa(*s.CRF))
		}
		if s.PixelFormat != "" {
			args = append(args, "-pix_fmt", s.PixelFormat)
		}
		if s.AudioCodec != "" {
			args = append(args, "-c:a", s.AudioCodec)
		}
		if s.AudioBitrate != "" {
			args = append(args, "-b:a", s.AudioBitrate)
		}
	}

	if s.SingleFrame {
		args = append(args, "-vframes", "1")
	}
	if s.Progress {
		args = append(args, "-progress", "pipe:2")
	}

	args = append(args, "-y", s.Output)
	return args
}

// ClampVolume bounds a volume factor to [0, 1]. Applied where request
// values enter the domain.
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// formatFloat renders a numeric value the way the transcoder expects:
// shortest decimal form, no trailing zeros, no exponent.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
