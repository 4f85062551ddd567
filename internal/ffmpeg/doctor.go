package ffmpeg

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Capabilities describes the resolved transcoder toolchain. It is probed
// once at startup and passed explicitly to the components that invoke the
// tools; nothing reads it from shared mutable state.
type Capabilities struct {
	FFmpegPath  string
	FFprobePath string
	Version     string
	ProbedAt    time.Time
}

// Ready reports whether both tools were found.
func (c *Capabilities) Ready() bool {
	return c != nil && c.FFmpegPath != "" && c.FFprobePath != ""
}

// Doctor resolves and version-probes the toolchain, caching the result so
// status queries do not spawn processes.
type Doctor struct {
	ffmpegOverride  string
	ffprobeOverride string
	logger          *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewDoctor(ffmpegOverride, ffprobeOverride string, logger *slog.Logger) *Doctor {
	return &Doctor{
		ffmpegOverride:  ffmpegOverride,
		ffprobeOverride: ffprobeOverride,
		logger:          logger,
	}
}

// Get returns cached capabilities, probing on first use.
func (d *Doctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Peek returns the cached capabilities without probing; nil before the
// first successful Refresh.
func (d *Doctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh re-resolves the toolchain regardless of cache state.
func (d *Doctor) Refresh(ctx context.Context) (*Capabilities, error) {
	ffmpegPath, err := Locate("ffmpeg", d.ffmpegOverride)
	if err != nil {
		return nil, err
	}
	ffprobePath, err := Locate("ffprobe", d.ffprobeOverride)
	if err != nil {
		return nil, err
	}

	caps := &Capabilities{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Version:     probeVersion(ctx, ffmpegPath),
		ProbedAt:    time.Now(),
	}

	d.mu.Lock()
	d.cached = caps
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("transcoder toolchain resolved",
			"ffmpeg", ffmpegPath,
			"ffprobe", ffprobePath,
			"version", caps.Version,
		)
	}
	return caps, nil
}

// probeVersion runs `<bin> -version` and extracts the version token from
// the first line. Failures leave the version empty; the binary existing is
// what matters.
func probeVersion(ctx context.Context, bin string) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin, "-version").Output()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(out), "\n")
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[1] == "version" {
		return fields[2]
	}
	return strings.TrimSpace(line)
}
