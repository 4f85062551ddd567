// Package playback serves stored media to local preview players with
// HTTP Range support, so scrubbing a clip does not pull the whole file.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipforge/clipforge-agent/internal/logging"
)

type PlaybackService interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error
}

// Fallbacks for the formats the library stores, so responses are typed
// correctly even when the host MIME table is bare.
var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".jpg":  "image/jpeg",
}

// Server streams files that live under the agent's data dir. Paths come
// from the clip store, but the root check keeps a corrupted row from
// exposing arbitrary files.
type Server struct {
	root   string
	logger *slog.Logger
}

func NewServer(root string, logger *slog.Logger) *Server {
	return &Server{root: filepath.Clean(root), logger: logger}
}

func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	if !s.contains(filePath) {
		s.logger.Warn("refused playback outside data dir", "path", logging.SanitizePath(filePath))
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("open %s: %w", filePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", filePath, err)
	}
	size := stat.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentTypeFor(filePath))

	parsedRange, err := ParseRange(r.Header.Get("Range"), size)
	if errors.Is(err, ErrUnsatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	// A malformed Range header is ignored and the whole file served.
	if parsedRange == nil {
		return s.serveWhole(w, r, file, size)
	}
	return s.servePartial(w, r, file, parsedRange, size)
}

func (s *Server) serveWhole(w http.ResponseWriter, r *http.Request, file *os.File, size int64) error {
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(w, file); err != nil {
		// Players drop connections when the user scrubs away.
		s.logger.Debug("playback stream ended early", "error", err)
	}
	return nil
}

func (s *Server) servePartial(w http.ResponseWriter, r *http.Request, file *os.File, rng *Range, size int64) error {
	w.Header().Set("Content-Length", fmt.Sprintf("%d", rng.ContentLength()))
	w.Header().Set("Content-Range", rng.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}

	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", rng.Start, err)
	}
	if _, err := io.CopyN(w, file, rng.ContentLength()); err != nil {
		s.logger.Debug("playback stream ended early", "error", err)
	}
	return nil
}

func (s *Server) contains(path string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
