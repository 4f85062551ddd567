package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

const maxStderrBytes = 8 * 1024 // tail of stderr kept for diagnostics

// Runner executes compiled specs against a resolved transcoder binary.
type Runner struct {
	bin    string
	logger *slog.Logger
}

// NewRunner creates a runner for the given binary path. The path should
// come from Locate or a Capabilities value so spawn failures surface at
// startup, not mid-job.
func NewRunner(bin string, logger *slog.Logger) *Runner {
	return &Runner{bin: bin, logger: logger}
}

// Bin returns the binary path this runner invokes.
func (r *Runner) Bin() string {
	return r.bin
}

// Run executes the spec to completion. Stdout is discarded; the stderr
// tail is captured and attached to any execution failure.
func (r *Runner) Run(ctx context.Context, spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	args := spec.Args()

	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}

	start := time.Now()
	if r.logger != nil {
		r.logger.Debug("running ffmpeg", "args", strings.Join(args, " "))
	}

	if err := cmd.Start(); err != nil {
		return &SpawnError{Bin: r.bin, Err: err}
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ExecError{ExitCode: exitCode(err), Stderr: stderr.String()}
	}

	if r.logger != nil {
		r.logger.Debug("ffmpeg finished", "duration_ms", time.Since(start).Milliseconds(), "output", spec.Output)
	}
	return nil
}

// RunProgress executes the spec while streaming progress events into emit.
// Stderr is piped to a tracker goroutine that runs concurrently with the
// process; completion waits for both. A zero exit without the declared
// output file present is a failure.
func (r *Runner) RunProgress(ctx context.Context, spec Spec, window Window, totalSeconds float64, emit func(int)) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	args := spec.Args()

	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Stdout = io.Discard
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return &SpawnError{Bin: r.bin, Err: err}
	}

	start := time.Now()
	if r.logger != nil {
		r.logger.Debug("running ffmpeg with progress", "args", strings.Join(args, " "),
			"offset", window.Offset, "range", window.Range)
	}

	if err := cmd.Start(); err != nil {
		return &SpawnError{Bin: r.bin, Err: err}
	}

	tracker := NewTracker(window, totalSeconds, emit)
	readDone := make(chan error, 1)
	go func() {
		readDone <- tracker.Consume(stderrPipe)
	}()

	// The pipe reaches EOF when the process exits; drain it fully before
	// Wait so no progress lines are lost.
	readErr := <-readDone
	waitErr := cmd.Wait()

	if waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ExecError{ExitCode: exitCode(waitErr), Stderr: tracker.Tail()}
	}
	if readErr != nil && r.logger != nil {
		r.logger.Warn("progress stream read failed", "error", readErr)
	}

	if _, err := os.Stat(spec.Output); err != nil {
		return &OutputError{Path: spec.Output}
	}

	tracker.Complete()
	if r.logger != nil {
		r.logger.Debug("ffmpeg finished", "duration_ms", time.Since(start).Milliseconds(), "output", spec.Output)
	}
	return nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
