// Package config provides configuration management for the ClipForge Agent.
// Configuration is loaded from an optional TOML file with environment
// variable overrides and sensible defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

const (
	// Default values
	DefaultPort         = 8971
	DefaultLogLevel     = "info"
	DefaultDataDir      = ".clipforge"
	DefaultPreset       = "medium"
	DefaultCRF          = 23
	DefaultAudioBitrate = "192k"

	// Environment variable names
	EnvConfigPath   = "CLIPFORGE_CONFIG"
	EnvPort         = "CLIPFORGE_PORT"
	EnvLogLevel     = "CLIPFORGE_LOG_LEVEL"
	EnvDataDir      = "CLIPFORGE_DATA_DIR"
	EnvAuthToken    = "CLIPFORGE_AUTH_TOKEN"
	EnvFFmpegPath   = "CLIPFORGE_FFMPEG"
	EnvFFprobePath  = "CLIPFORGE_FFPROBE"
	EnvWatchDir     = "CLIPFORGE_WATCH_DIR"
	EnvTrayDisabled = "CLIPFORGE_NO_TRAY"

	// Database filename
	DBFilename = "clipforge.db"

	// Lock filename guarding the data directory
	LockFilename = "agent.lock"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	LockPath() string
	AuthToken() string

	ClipsDir() string
	ThumbnailsDir() string
	EditedDir() string
	AudioDir() string
	RecordingsDir() string
	ScratchDir() string
	WatchDir() string

	FFmpegPath() string
	FFprobePath() string
	TrayEnabled() bool

	EncodePreset() string
	EncodeCRF() int
	EncodeAudioBitrate() string
}

// fileConfig mirrors the TOML layout of the on-disk configuration file.
type fileConfig struct {
	Agent struct {
		Port      int    `toml:"port"`
		LogLevel  string `toml:"log_level"`
		DataDir   string `toml:"data_dir"`
		AuthToken string `toml:"auth_token"`
		Tray      bool   `toml:"tray"`
	} `toml:"agent"`
	Tools struct {
		FFmpeg  string `toml:"ffmpeg"`
		FFprobe string `toml:"ffprobe"`
	} `toml:"tools"`
	Export struct {
		ScratchDir   string `toml:"scratch_dir"`
		Preset       string `toml:"preset"`
		CRF          int    `toml:"crf"`
		AudioBitrate string `toml:"audio_bitrate"`
	} `toml:"export"`
	Watch struct {
		Dir string `toml:"dir"`
	} `toml:"watch"`
}

// AgentConfig is the resolved configuration: file values merged with
// environment overrides, all paths absolute.
type AgentConfig struct {
	port      int
	logLevel  string
	dataDir   string
	authToken string
	tray      bool

	ffmpegPath  string
	ffprobePath string

	scratchDir   string
	preset       string
	crf          int
	audioBitrate string

	watchDir string
}

// New loads configuration from the default file location (if present) and
// the environment.
func New() (*AgentConfig, error) {
	return Load("")
}

// Load reads the TOML file at path (or the default location when path is
// empty), applies environment overrides, and validates the result.
func Load(path string) (*AgentConfig, error) {
	fc := fileConfig{}
	fc.Agent.Port = DefaultPort
	fc.Agent.LogLevel = DefaultLogLevel
	fc.Agent.Tray = true
	fc.Export.Preset = DefaultPreset
	fc.Export.CRF = DefaultCRF
	fc.Export.AudioBitrate = DefaultAudioBitrate

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(&fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	cfg := &AgentConfig{
		port:         fc.Agent.Port,
		logLevel:     fc.Agent.LogLevel,
		dataDir:      fc.Agent.DataDir,
		authToken:    fc.Agent.AuthToken,
		tray:         fc.Agent.Tray,
		ffmpegPath:   fc.Tools.FFmpeg,
		ffprobePath:  fc.Tools.FFprobe,
		scratchDir:   fc.Export.ScratchDir,
		preset:       fc.Export.Preset,
		crf:          fc.Export.CRF,
		audioBitrate: fc.Export.AudioBitrate,
		watchDir:     fc.Watch.Dir,
	}

	if cfg.dataDir == "" {
		cfg.dataDir = defaultDataDir()
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.port)
	}
	if cfg.crf < 0 || cfg.crf > 51 {
		return nil, fmt.Errorf("invalid crf %d: must be between 0 and 51", cfg.crf)
	}

	abs, err := filepath.Abs(cfg.dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.dataDir = abs

	return cfg, nil
}

func (c *AgentConfig) applyEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}
	if tok := os.Getenv(EnvAuthToken); tok != "" {
		c.authToken = tok
	}
	if fp := os.Getenv(EnvFFmpegPath); fp != "" {
		c.ffmpegPath = fp
	}
	if fp := os.Getenv(EnvFFprobePath); fp != "" {
		c.ffprobePath = fp
	}
	if wd := os.Getenv(EnvWatchDir); wd != "" {
		c.watchDir = wd
	}
	if os.Getenv(EnvTrayDisabled) != "" {
		c.tray = false
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = filepath.Join(defaultDataDir(), "config.toml")
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", path)
	}
	return path, true, nil
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Port returns the HTTP server port
func (c *AgentConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *AgentConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *AgentConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *AgentConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LockPath returns the path of the single-instance lock file
func (c *AgentConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// AuthToken returns the bearer token required by the HTTP API; empty
// disables authentication (local development only).
func (c *AgentConfig) AuthToken() string {
	return c.authToken
}

// ClipsDir returns the directory holding imported clips
func (c *AgentConfig) ClipsDir() string {
	return filepath.Join(c.dataDir, "clips")
}

// ThumbnailsDir returns the directory holding generated thumbnails
func (c *AgentConfig) ThumbnailsDir() string {
	return filepath.Join(c.dataDir, "thumbnails")
}

// EditedDir returns the directory holding trimmed copies
func (c *AgentConfig) EditedDir() string {
	return filepath.Join(c.dataDir, "edited")
}

// AudioDir returns the directory holding extracted audio
func (c *AgentConfig) AudioDir() string {
	return filepath.Join(c.dataDir, "audio")
}

// RecordingsDir returns the directory holding uploaded recordings
func (c *AgentConfig) RecordingsDir() string {
	return filepath.Join(c.dataDir, "recordings")
}

// ScratchDir returns the directory for per-job scratch artifacts
func (c *AgentConfig) ScratchDir() string {
	if c.scratchDir != "" {
		return c.scratchDir
	}
	return filepath.Join(c.dataDir, "scratch")
}

// WatchDir returns the optional auto-import watch directory; empty
// disables the watcher.
func (c *AgentConfig) WatchDir() string {
	return c.watchDir
}

// FFmpegPath returns the configured ffmpeg override, or empty to resolve
// via sidecar/PATH lookup.
func (c *AgentConfig) FFmpegPath() string {
	return c.ffmpegPath
}

// FFprobePath returns the configured ffprobe override, or empty to resolve
// via sidecar/PATH lookup.
func (c *AgentConfig) FFprobePath() string {
	return c.ffprobePath
}

// TrayEnabled reports whether the system tray icon should be shown
func (c *AgentConfig) TrayEnabled() bool {
	return c.tray
}

// EncodePreset returns the default H.264 preset for exports
func (c *AgentConfig) EncodePreset() string {
	return strings.TrimSpace(c.preset)
}

// EncodeCRF returns the default constant rate factor for exports
func (c *AgentConfig) EncodeCRF() int {
	return c.crf
}

// EncodeAudioBitrate returns the default AAC bitrate for exports
func (c *AgentConfig) EncodeAudioBitrate() string {
	return strings.TrimSpace(c.audioBitrate)
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
