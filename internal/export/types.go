package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ClipSpec is one clip in an export request, already resolved to a file
// on disk. Start and End are seconds within the source; End <= Start
// means the whole clip. Muted wins over Volume.
type ClipSpec struct {
	Path   string   `json:"path"`
	Start  float64  `json:"start"`
	End    float64  `json:"end"`
	Volume *float64 `json:"volume,omitempty"`
	Muted  bool     `json:"muted,omitempty"`
}

// trimmed reports whether the clip plays a sub-range of its source.
func (c ClipSpec) trimmed() bool {
	return c.End > c.Start
}

// duration returns the clip's playable duration given the probed source
// duration, accounting for any trim range.
func (c ClipSpec) duration(source float64) float64 {
	if c.trimmed() {
		return c.End - c.Start
	}
	return source
}

// Request describes a full export: an ordered timeline of clips, a named
// target resolution, and the output file path.
type Request struct {
	Clips      []ClipSpec `json:"clips"`
	Resolution string     `json:"resolution"`
	OutputPath string     `json:"output_path"`
}

type resolution struct {
	width  int
	height int
}

var resolutions = map[string]resolution{
	"source": {1280, 720},
	"480p":   {854, 480},
	"720p":   {1280, 720},
	"1080p":  {1920, 1080},
	"4K":     {3840, 2160},
}

// ResolutionNames lists the accepted resolution names in menu order.
func ResolutionNames() []string {
	return []string{"source", "480p", "720p", "1080p", "4K"}
}

// Resolve maps a resolution name to output dimensions. "source" currently
// falls back to 720p rather than probing the first clip.
func Resolve(name string) (width, height int, err error) {
	r, ok := resolutions[name]
	if !ok {
		return 0, 0, fmt.Errorf("unsupported resolution: %s (use %s)", name, strings.Join(ResolutionNames(), ", "))
	}
	return r.width, r.height, nil
}

// validateOutputPath checks that the requested output file can be created:
// a non-empty .mp4 path whose parent directory exists, with no path
// traversal components.
func validateOutputPath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("output path is empty")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("output path contains path traversal")
	}
	if filepath.Clean(path) != path {
		return fmt.Errorf("output path is not a clean path: %s", path)
	}
	if strings.ToLower(filepath.Ext(path)) != ".mp4" {
		return fmt.Errorf("output path must end in .mp4: %s", path)
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", dir)
		}
		return fmt.Errorf("cannot access output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory is not a directory: %s", dir)
	}
	return nil
}
