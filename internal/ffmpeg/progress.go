package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Window maps a phase's local 0-100% progress into a slice of the overall
// job's 0-100% progress. A single-phase job uses FullWindow.
type Window struct {
	Offset int
	Range  int
}

// FullWindow spans the entire job.
var FullWindow = Window{Offset: 0, Range: 100}

const emitInterval = 100 * time.Millisecond

// progressKeys is the set of keys the transcoder's -progress protocol
// emits on stderr. Lines with other content are diagnostics and are kept
// for error reporting instead.
var progressKeys = map[string]bool{
	"frame": true, "fps": true, "stream_0_0_q": true, "bitrate": true,
	"total_size": true, "out_time_us": true, "out_time_ms": true,
	"out_time": true, "dup_frames": true, "drop_frames": true,
	"speed": true, "progress": true,
}

// Tracker converts a transcoder's line-oriented progress report into
// throttled overall-percentage events. It prefers the microsecond
// timestamp key over the millisecond one, computes phase-local progress
// against a known total duration, maps it through the window, and emits at
// most one event per 100ms. The consuming loop ends with the stream;
// deciding process success is the runner's job.
type Tracker struct {
	window Window
	total  float64
	emit   func(int)

	now      func() time.Time
	lastEmit time.Time
	seenUS   bool

	tail tailBuffer
}

// NewTracker creates a tracker for one phase. totalSeconds may be zero
// when the phase duration is unknown; progress then stays at the window
// offset until completion.
func NewTracker(window Window, totalSeconds float64, emit func(int)) *Tracker {
	return &Tracker{
		window: window,
		total:  totalSeconds,
		emit:   emit,
		now:    time.Now,
	}
}

// Consume reads progress lines until the stream ends. Non-progress lines
// are retained as the diagnostic tail.
func (t *Tracker) Consume(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		t.line(sc.Text())
	}
	return sc.Err()
}

func (t *Tracker) line(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	key, value, found := strings.Cut(line, "=")
	if !found || !progressKeys[key] {
		t.tail.append(line)
		return
	}

	switch key {
	case "out_time_us":
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return
		}
		t.seenUS = true
		t.update(float64(us) / 1e6)
	case "out_time_ms":
		if t.seenUS {
			return
		}
		ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return
		}
		t.update(float64(ms) / 1e3)
	}
}

func (t *Tracker) update(elapsed float64) {
	phase := 0.0
	if t.total > 0 {
		phase = elapsed / t.total * 100
		if phase > 100 {
			phase = 100
		}
	}
	overall := float64(t.window.Offset) + phase/100*float64(t.window.Range)
	if overall > 100 {
		overall = 100
	}

	now := t.now()
	if !t.lastEmit.IsZero() && now.Sub(t.lastEmit) < emitInterval {
		return
	}
	t.lastEmit = now
	t.emit(int(overall))
}

// Complete emits the phase's terminal percentage (offset+range, capped at
// 100) without throttling, so a finished phase always lands on its window
// boundary.
func (t *Tracker) Complete() {
	final := t.window.Offset + t.window.Range
	if final > 100 {
		final = 100
	}
	t.emit(final)
}

// Tail returns the retained non-progress diagnostic lines.
func (t *Tracker) Tail() string {
	return t.tail.String()
}

// tailBuffer keeps the last maxStderrBytes of appended lines.
type tailBuffer struct {
	buf []byte
}

func (b *tailBuffer) append(line string) {
	b.buf = append(b.buf, line...)
	b.buf = append(b.buf, '\n')
	if len(b.buf) > maxStderrBytes {
		b.buf = b.buf[len(b.buf)-maxStderrBytes:]
	}
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
