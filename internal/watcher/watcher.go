// Package watcher auto-imports video files dropped into a watched folder.
// Files are debounced until their size stops changing, so half-copied
// files are not picked up mid-transfer.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/logging"
)

// Importer is the slice of the catalog service the watcher needs.
type Importer interface {
	ImportFile(ctx context.Context, path string) (*catalog.Clip, error)
}

// pendingFile tracks a file waiting to settle. size is -1 until the
// first sweep stats it.
type pendingFile struct {
	size      int64
	lastGrown time.Time
}

type Watcher struct {
	dir      string
	importer Importer
	logger   *slog.Logger

	sweepEvery  time.Duration
	settleAfter time.Duration
}

func New(dir string, importer Importer, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:         dir,
		importer:    importer,
		logger:      logger,
		sweepEvery:  500 * time.Millisecond,
		settleAfter: time.Second,
	}
}

// Run watches the folder until ctx is canceled. It returns an error only
// when the watch cannot be established.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("watch folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch folder %s is not a directory", w.dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watch folder active", "dir", w.dir)

	pending := make(map[string]*pendingFile)
	imported := make(map[string]struct{})
	ticker := time.NewTicker(w.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch folder stopped")
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, pending, imported)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		case <-ticker.C:
			w.sweep(ctx, pending, imported)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event, pending map[string]*pendingFile, imported map[string]struct{}) {
	path := event.Name
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		delete(pending, path)
		delete(imported, path)
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !watchable(path) {
		return
	}
	if _, done := imported[path]; done {
		return
	}
	if _, ok := pending[path]; !ok {
		pending[path] = &pendingFile{size: -1, lastGrown: time.Now()}
	}
}

// sweep stats every pending file and imports the ones whose size has not
// changed for the settle window.
func (w *Watcher) sweep(ctx context.Context, pending map[string]*pendingFile, imported map[string]struct{}) {
	for path, p := range pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(pending, path)
			continue
		}
		if info.Size() != p.size {
			p.size = info.Size()
			p.lastGrown = time.Now()
			continue
		}
		if time.Since(p.lastGrown) < w.settleAfter {
			continue
		}

		delete(pending, path)
		clip, err := w.importer.ImportFile(ctx, path)
		if err != nil {
			w.logger.Warn("auto-import failed",
				"path", logging.SanitizePath(path), "error", err)
			continue
		}
		imported[path] = struct{}{}
		w.logger.Info("clip auto-imported",
			"clip_id", clip.ID, "path", logging.SanitizePath(path))
	}
}

// watchable filters to video files, skipping dotfiles and the partial
// suffixes download tools use.
func watchable(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".part", ".tmp", ".crdownload":
		return false
	}
	return catalog.IsVideoFile(base)
}
