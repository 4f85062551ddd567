// Package ui renders the system tray: agent state, the running export's
// percentage, and a couple of shortcuts. All catalog and export state is
// pushed in from outside; the tray owns no polling of its own.
package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"
)

type Tray struct {
	logger *slog.Logger

	statusItem *systray.MenuItem
	clipsItem  *systray.MenuItem

	mu sync.Mutex

	onOpenData func() error
	onQuit     func()
}

type TrayConfig struct {
	Logger     *slog.Logger
	OnOpenData func() error
	OnQuit     func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		logger:     cfg.Logger,
		onOpenData: cfg.OnOpenData,
		onQuit:     cfg.OnQuit,
	}
}

// Run blocks on the platform event loop; call it from the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("ClipForge")
	systray.SetTooltip("ClipForge Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.clipsItem = systray.AddMenuItem("Clips: 0", "Clips in the library")
	t.clipsItem.Disable()

	systray.AddSeparator()

	openDataItem := systray.AddMenuItem("Open Data Folder...", "Open the clip library on disk")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit ClipForge Agent")

	go func() {
		for {
			select {
			case <-openDataItem.ClickedCh:
				t.handleOpenData()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) handleOpenData() {
	if t.onOpenData != nil {
		if err := t.onOpenData(); err != nil {
			t.logger.Error("failed to open data folder", "error", err)
		}
	}
}

// SetExporting shows the running export's progress in the status line.
func (t *Tray) SetExporting(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statusItem == nil {
		return
	}
	t.statusItem.SetTitle(fmt.Sprintf("Status: Exporting %d%%", percent))
}

func (t *Tray) SetIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statusItem == nil {
		return
	}
	t.statusItem.SetTitle("Status: Idle")
}

func (t *Tray) UpdateClipCount(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clipsItem == nil {
		return
	}
	t.clipsItem.SetTitle(fmt.Sprintf("Clips: %d", count))
}

func (t *Tray) Quit() {
	systray.Quit()
}
