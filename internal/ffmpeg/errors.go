package ffmpeg

import (
	"fmt"
	"strings"
)

// SpawnError means the transcoder binary could not be located or started.
// It is fatal for the invocation and never retried.
type SpawnError struct {
	Bin string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("cannot start %s: %v", e.Bin, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExecError means the process exited with a non-zero status. Stderr holds
// the captured diagnostic tail.
type ExecError struct {
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	tail := strings.TrimSpace(e.Stderr)
	if tail == "" {
		return fmt.Sprintf("ffmpeg exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg exited with status %d: %s", e.ExitCode, tail)
}

// OutputError means the process exited successfully but the declared output
// file does not exist. Treated identically to an execution failure since it
// indicates silent tool malfunction.
type OutputError struct {
	Path string
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("ffmpeg reported success but output %s was not created", e.Path)
}
