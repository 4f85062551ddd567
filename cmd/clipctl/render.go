package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorize(w io.Writer, color, s string) string {
	if !isTerminal(w) {
		return s
	}
	return color + s + ansiReset
}

// kvLine prints an aligned "  Label:  value" row for status-style output.
func kvLine(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-14s %s\n", label+":", value)
}

// progressRenderer draws export progress in place on a TTY, or as one line
// per change elsewhere.
type progressRenderer struct {
	w       io.Writer
	inPlace bool
	last    int
}

func newProgressRenderer(w io.Writer) *progressRenderer {
	return &progressRenderer{w: w, inPlace: isTerminal(w), last: -1}
}

func (p *progressRenderer) update(percent int) {
	if percent == p.last {
		return
	}
	p.last = percent
	if p.inPlace {
		fmt.Fprintf(p.w, "\rExporting %3d%%", percent)
		return
	}
	fmt.Fprintf(p.w, "progress %d%%\n", percent)
}

// finish terminates the in-place line so what follows starts fresh.
func (p *progressRenderer) finish() {
	if p.inPlace && p.last >= 0 {
		fmt.Fprintln(p.w)
	}
}

func byteSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
