package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata is the subset of probed stream/container facts the agent keeps.
type Metadata struct {
	DurationSeconds float64
	Width           int
	Height          int
	Codec           string
	FrameRate       float64
	BitRate         int64
	SizeBytes       int64
}

// Wire types mirroring the prober's JSON output. Numeric fields arrive as
// strings and are converted during parsing.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
	Size     string `json:"size"`
}

// Prober runs ffprobe and maps its JSON report to Metadata.
type Prober struct {
	bin    string
	logger *slog.Logger
}

func NewProber(bin string, logger *slog.Logger) *Prober {
	return &Prober{bin: bin, logger: logger}
}

// Probe inspects a media file. Container parsing is fully delegated to the
// external tool; an unreadable file surfaces as its non-zero exit.
func (p *Prober) Probe(ctx context.Context, path string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, p.bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExecError{ExitCode: exitErr.ExitCode(), Stderr: string(exitErr.Stderr)}
		}
		return nil, &SpawnError{Bin: p.bin, Err: err}
	}

	meta, err := ParseProbeJSON(out)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return meta, nil
}

// ParseProbeJSON converts a probe report into Metadata. Exported so tests
// can exercise the mapping against captured reports without the binary.
func ParseProbeJSON(data []byte) (*Metadata, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse probe JSON: %w", err)
	}

	meta := &Metadata{
		DurationSeconds: parseFloatField(out.Format.Duration),
		BitRate:         parseIntField(out.Format.BitRate),
		SizeBytes:       parseIntField(out.Format.Size),
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		meta.Width = s.Width
		meta.Height = s.Height
		meta.Codec = s.CodecName
		meta.FrameRate = parseFrameRate(s.RFrameRate)
		break
	}

	return meta, nil
}

// parseFrameRate evaluates the prober's rational frame rate ("30000/1001").
func parseFrameRate(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	num, den, found := strings.Cut(raw, "/")
	if !found {
		v, _ := strconv.ParseFloat(raw, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseFloatField(raw string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	return v
}

func parseIntField(raw string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return v
}
