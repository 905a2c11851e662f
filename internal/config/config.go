// Package config handles loading and managing minutes configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// RemoteConfig holds the connection settings for the remote authority.
type RemoteConfig struct {
	URL            string `toml:"url"`             // API base URL, e.g. https://actas.example.com/api
	AllowInsecure  bool   `toml:"allow_insecure"`  // Permit plain http to non-loopback hosts
	TimeoutSeconds int    `toml:"timeout_seconds"` // Per-request timeout
	MediaPrefix    string `toml:"media_prefix"`    // Path prefix the server uses for media links
}

// QueryConfig holds list filtering settings.
type QueryConfig struct {
	DebounceMS int `toml:"debounce_ms"` // Delay before a title filter edit is sent
}

// AttachmentsConfig holds attachment viewing and download settings.
//
// ReleaseGraceMS starts counting when the viewer command returns. xdg-open,
// open and rundll32 return before the viewer has read the file, so slow
// external viewers may need a few seconds (e.g. release_grace_ms = 5000).
type AttachmentsConfig struct {
	DownloadDir       string `toml:"download_dir"`       // Fallback save location when no viewer opens
	ReleaseGraceMS    int    `toml:"release_grace_ms"`   // How long a fetched file outlives presentation
	Viewer            string `toml:"viewer"`             // Optional viewer command (overrides xdg-open/open)
	ExportConcurrency int    `toml:"export_concurrency"` // Parallel downloads for export-attachments
}

// Config represents the minutes configuration.
type Config struct {
	Remote      RemoteConfig      `toml:"remote"`
	Query       QueryConfig       `toml:"query"`
	Attachments AttachmentsConfig `toml:"attachments"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// DefaultHome returns the default minutes home directory.
// Respects MINUTES_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MINUTES_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".minutes"
	}
	return filepath.Join(home, ".minutes")
}

// Load reads the configuration from the specified file.
// If path is empty, uses config.toml inside the home directory. homeDir
// overrides MINUTES_HOME when non-empty.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	} else {
		homeDir = expandPath(homeDir)
	}

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir:    homeDir,
		configPath: path,
		// Defaults
		Remote: RemoteConfig{
			URL:            "http://localhost:8000/api",
			TimeoutSeconds: 30,
			MediaPrefix:    "/media/",
		},
		Query: QueryConfig{
			DebounceMS: 300,
		},
		Attachments: AttachmentsConfig{
			DownloadDir:       defaultDownloadDir(),
			ReleaseGraceMS:    1000,
			ExportConcurrency: 4,
		},
	}

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Expand ~ in paths
	cfg.Attachments.DownloadDir = expandPath(cfg.Attachments.DownloadDir)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Remote.URL == "" {
		return fmt.Errorf("[remote] url must not be empty")
	}
	if c.Remote.TimeoutSeconds < 0 {
		return fmt.Errorf("[remote] timeout_seconds must not be negative, got %d", c.Remote.TimeoutSeconds)
	}
	if c.Query.DebounceMS < 0 {
		return fmt.Errorf("[query] debounce_ms must not be negative, got %d", c.Query.DebounceMS)
	}
	if c.Attachments.ReleaseGraceMS < 0 {
		return fmt.Errorf("[attachments] release_grace_ms must not be negative, got %d", c.Attachments.ReleaseGraceMS)
	}
	if c.Attachments.ExportConcurrency < 1 {
		c.Attachments.ExportConcurrency = 1
	}
	if c.Remote.MediaPrefix == "" {
		c.Remote.MediaPrefix = "/media/"
	}
	return nil
}

// ConfigFilePath returns the path the configuration was (or would be) read from.
func (c *Config) ConfigFilePath() string {
	if c.configPath != "" {
		return c.configPath
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// EnsureHomeDir creates the home directory if it does not exist.
func (c *Config) EnsureHomeDir() error {
	return os.MkdirAll(c.HomeDir, 0700)
}

// SessionDBPath returns the path to the SQLite credential store.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.HomeDir, "session.db")
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// DebounceDelay returns the title filter debounce delay.
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.Query.DebounceMS) * time.Millisecond
}

// ReleaseGrace returns how long a fetched attachment is kept after presentation.
func (c *Config) ReleaseGrace() time.Duration {
	return time.Duration(c.Attachments.ReleaseGraceMS) * time.Millisecond
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
