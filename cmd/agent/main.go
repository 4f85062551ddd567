package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/clipforge/clipforge-agent/internal/api"
	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/config"
	"github.com/clipforge/clipforge-agent/internal/db"
	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/ffmpeg"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/playback"
	"github.com/clipforge/clipforge-agent/internal/ui"
	"github.com/clipforge/clipforge-agent/internal/watcher"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting clipforge agent", "version", Version, "data_dir", cfg.DataDir())

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire agent lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another agent already holds %s", cfg.LockPath())
	}
	defer lock.Unlock()

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo, cfg.AuthToken())
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                   CLIPFORGE AGENT v0.1.0                  ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	dirs := catalog.Dirs{
		Clips:      cfg.ClipsDir(),
		Thumbnails: cfg.ThumbnailsDir(),
		Edited:     cfg.EditedDir(),
		Audio:      cfg.AudioDir(),
		Recordings: cfg.RecordingsDir(),
	}
	if err := dirs.Ensure(); err != nil {
		return err
	}

	doctor := ffmpeg.NewDoctor(cfg.FFmpegPath(), cfg.FFprobePath(), logger)
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 15*time.Second)
	caps, err := doctor.Refresh(probeCtx)
	probeCancel()
	if err != nil {
		logger.Warn("ffmpeg toolchain not found, transcode operations will fail until it appears",
			"error", err)
	}

	// Without a resolved toolchain the bare names still go through PATH at
	// spawn time, so a later install starts working without a restart.
	ffmpegBin, ffprobeBin := "ffmpeg", "ffprobe"
	if caps.Ready() {
		ffmpegBin, ffprobeBin = caps.FFmpegPath, caps.FFprobePath
	}
	engine := ffmpeg.NewRunner(ffmpegBin, logger)
	prober := ffmpeg.NewProber(ffprobeBin, logger)

	catalogSvc := catalog.NewService(repo, engine, prober, dirs, logger)
	playbackSvc := playback.NewServer(cfg.DataDir(), logger)

	exporter := export.NewExporter(engine, prober, cfg.ScratchDir(), export.EncodeOptions{
		Preset:       cfg.EncodePreset(),
		CRF:          cfg.EncodeCRF(),
		AudioBitrate: cfg.EncodeAudioBitrate(),
	}, logger)
	manager := export.NewManager(repo, exporter, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Run(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		CatalogService: catalogSvc,
		PlaybackServer: playbackSvc,
		Repository:     repo,
		Manager:        manager,
		Doctor:         doctor,
		Logger:         logger,
		StartTime:      startTime,
		DeviceID:       deviceID,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	if dir := cfg.WatchDir(); dir != "" {
		w := watcher.New(dir, catalogSvc, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Warn("watch folder disabled", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if !cfg.TrayEnabled() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Logger: logger,
			OnOpenData: func() error {
				return openFolder(cfg.DataDir())
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
		go refreshTray(ctx, tray, manager, repo, catalogSvc)
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// refreshTray mirrors export progress and the clip count into the tray menu.
func refreshTray(ctx context.Context, tray *ui.Tray, manager *export.Manager, repo catalog.Repository, svc catalog.CatalogService) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if id := manager.ActiveJobID(); id != "" {
				if job, err := repo.GetJob(ctx, id); err == nil && job != nil {
					tray.SetExporting(job.Progress)
				}
			} else {
				tray.SetIdle()
			}
			if count, err := svc.CountClips(ctx); err == nil {
				tray.UpdateClipCount(count)
			}
		}
	}
}

func openFolder(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("explorer", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}

func ensureDeviceID(repo catalog.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	deviceID := hex.EncodeToString(idBytes)

	if err := repo.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}

	return deviceID, nil
}

// ensureAuthToken prefers a token from config, falling back to the stored
// one, generating a fresh one on first run. The DB copy is what the auth
// middleware reads.
func ensureAuthToken(repo catalog.Repository, configured string) (string, error) {
	ctx := context.Background()

	if configured != "" {
		if err := repo.SetConfig(ctx, "auth_token", configured); err != nil {
			return "", err
		}
		return configured, nil
	}

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
