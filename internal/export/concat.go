package export

import (
	"fmt"
	"os"
	"strings"
)

// writeConcatList writes an ffmpeg concat demuxer list referencing the
// given files in order. Paths are single-quoted with embedded quotes
// escaped, so arbitrary filenames survive the demuxer's parser.
func writeConcatList(path string, files []string) error {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(f))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}
