// Package config provides configuration management for the render service.
// Configuration is loaded from HEIMDEX_-prefixed environment variables with
// sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/heimdex/heimdex-render/internal/logging"
)

const (
	// EnvPrefix is prepended to every variable name, e.g. HEIMDEX_PORT.
	EnvPrefix = "HEIMDEX"

	DefaultPort     = 8787
	DefaultLogLevel = "info"
	DefaultDataDir  = ".heimdex-render"

	// Database filename
	DBFilename = "heimdex-render.db"

	ProcessedDir = "processed"
	UploadsDir   = "uploads"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	BindAddr() string
	LogLevel() string
	DataDir() string
	DBPath() string
	MediaDir() string
	ProcessedDir() string
	FFmpegPath() string
	FFprobePath() string
	PluginsFile() string
	FontFile() string
	MaxConcurrentRenders() int
	CancelSuperseded() bool
	PreviewRetention() time.Duration
	ThumbnailRetention() time.Duration
	SweepInterval() time.Duration
	RescanInterval() time.Duration
	JobRetention() time.Duration
	Headless() bool
	AuthDisabled() bool
}

// spec is the envconfig target.
type spec struct {
	Port                 int           `envconfig:"PORT" default:"8787"`
	BindAddr             string        `envconfig:"BIND_ADDR" default:"127.0.0.1"`
	LogLevel             string        `envconfig:"LOG_LEVEL" default:"info"`
	DataDir              string        `envconfig:"DATA_DIR"`
	MediaDir             string        `envconfig:"MEDIA_DIR"`
	FFmpegPath           string        `envconfig:"FFMPEG_PATH"`
	FFprobePath          string        `envconfig:"FFPROBE_PATH"`
	PluginsFile          string        `envconfig:"PLUGINS_FILE"`
	FontFile             string        `envconfig:"FONT_FILE" default:"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf"`
	MaxConcurrentRenders int           `envconfig:"MAX_CONCURRENT_RENDERS" default:"2"`
	CancelSuperseded     bool          `envconfig:"CANCEL_SUPERSEDED" default:"false"`
	PreviewRetention     time.Duration `envconfig:"PREVIEW_RETENTION" default:"15m"`
	ThumbnailRetention   time.Duration `envconfig:"THUMBNAIL_RETENTION" default:"5m"`
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	RescanInterval       time.Duration `envconfig:"RESCAN_INTERVAL" default:"1m"`
	JobRetention         time.Duration `envconfig:"JOB_RETENTION" default:"24h"`
	Headless             bool          `envconfig:"HEADLESS" default:"true"`
	AuthDisabled         bool          `envconfig:"AUTH_DISABLED" default:"false"`
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	s spec
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	var s spec
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if s.Port < 1 || s.Port > 65535 {
		return nil, fmt.Errorf("invalid %s_PORT: port must be between 1 and 65535", EnvPrefix)
	}
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid %s_LOG_LEVEL: %w", EnvPrefix, err)
	}
	if s.MaxConcurrentRenders < 0 {
		return nil, fmt.Errorf("invalid %s_MAX_CONCURRENT_RENDERS: must be >= 0", EnvPrefix)
	}
	for name, d := range map[string]time.Duration{
		"PREVIEW_RETENTION":   s.PreviewRetention,
		"THUMBNAIL_RETENTION": s.ThumbnailRetention,
		"SWEEP_INTERVAL":      s.SweepInterval,
		"JOB_RETENTION":       s.JobRetention,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s_%s: must be positive", EnvPrefix, name)
		}
	}

	if s.RescanInterval < 0 {
		return nil, fmt.Errorf("invalid %s_RESCAN_INTERVAL: must be >= 0", EnvPrefix)
	}

	if s.DataDir == "" {
		s.DataDir = defaultDataDir()
	}
	if s.MediaDir == "" {
		s.MediaDir = filepath.Join(s.DataDir, UploadsDir)
	}

	return &EnvConfig{s: s}, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.s.Port
}

func (c *EnvConfig) BindAddr() string {
	return c.s.BindAddr
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.s.LogLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.s.DataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.s.DataDir, DBFilename)
}

// MediaDir is where clip sources resolve.
func (c *EnvConfig) MediaDir() string {
	return c.s.MediaDir
}

// ProcessedDir receives finished exports.
func (c *EnvConfig) ProcessedDir() string {
	return filepath.Join(c.s.DataDir, ProcessedDir)
}

func (c *EnvConfig) FFmpegPath() string {
	return c.s.FFmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.s.FFprobePath
}

func (c *EnvConfig) PluginsFile() string {
	return c.s.PluginsFile
}

func (c *EnvConfig) FontFile() string {
	return c.s.FontFile
}

func (c *EnvConfig) MaxConcurrentRenders() int {
	return c.s.MaxConcurrentRenders
}

func (c *EnvConfig) CancelSuperseded() bool {
	return c.s.CancelSuperseded
}

func (c *EnvConfig) PreviewRetention() time.Duration {
	return c.s.PreviewRetention
}

func (c *EnvConfig) ThumbnailRetention() time.Duration {
	return c.s.ThumbnailRetention
}

func (c *EnvConfig) SweepInterval() time.Duration {
	return c.s.SweepInterval
}

// RescanInterval is how often the media directory is polled for changes.
// Zero disables polling.
func (c *EnvConfig) RescanInterval() time.Duration {
	return c.s.RescanInterval
}

func (c *EnvConfig) JobRetention() time.Duration {
	return c.s.JobRetention
}

// Headless disables the system tray.
func (c *EnvConfig) Headless() bool {
	return c.s.Headless
}

func (c *EnvConfig) AuthDisabled() bool {
	return c.s.AuthDisabled
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
