// Package config loads chaptercast settings from a TOML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cwygoda/chaptercast/internal/adapter/mp3gain"
	"github.com/cwygoda/chaptercast/internal/adapter/ytdlp"
	"github.com/cwygoda/chaptercast/internal/domain"
)

// Tool configures an external command.
type Tool struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Defaults are the extraction options used when a request leaves them empty.
type Defaults struct {
	Format  string `toml:"format"`
	Quality string `toml:"quality"`
}

// Log controls the slog handler.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config holds application configuration.
//
// Downloader.Args are appended to the yt-dlp invocation before the URL.
// Normalizer.Args are the complete argument list; "{file}" marks where the
// audio file goes.
type Config struct {
	Port         int           `toml:"port"`
	DBPath       string        `toml:"db_path"`
	OutputDir    string        `toml:"output_dir"`
	PollInterval time.Duration `toml:"poll_interval"`
	Secret       string        `toml:"secret"`
	Downloader   Tool          `toml:"downloader"`
	Normalizer   Tool          `toml:"normalizer"`
	Defaults     Defaults      `toml:"defaults"`
	Log          Log           `toml:"log"`
}

// DefaultDBPath returns the default database path using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "chaptercast", "jobs.db")
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "chaptercast", "config.toml")
}

// DefaultOutputDir returns the default directory for work dirs and artifacts.
func DefaultOutputDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Music", "chaptercast")
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	def := domain.DefaultOptions()
	return Config{
		Port:         8080,
		DBPath:       DefaultDBPath(),
		OutputDir:    DefaultOutputDir(),
		PollInterval: 5 * time.Second,
		Downloader:   Tool{Command: ytdlp.DefaultCommand},
		Normalizer:   Tool{Command: mp3gain.DefaultCommand, Args: slices.Clone(mp3gain.DefaultArgs)},
		Defaults:     Defaults{Format: def.Format, Quality: def.Quality},
		Log:          Log{Level: "info", Format: "auto"},
	}
}

// Load reads the config file at path (DefaultConfigPath when empty), applies
// environment overrides and validates the result. A missing file is not an
// error; the returned bool reports whether one was read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	path, err := ExpandPath(path)
	if err != nil {
		return nil, false, err
	}

	found := true
	md, err := toml.DecodeFile(path, &cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if explicit {
			return nil, false, fmt.Errorf("config file %s: %w", path, err)
		}
		found = false
	case err != nil:
		return nil, false, fmt.Errorf("parse config %s: %w", path, err)
	default:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, false, fmt.Errorf("parse config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, found, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("CHAPTERCAST_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("CHAPTERCAST_PORT: %w", err)
		}
		c.Port = p
	}
	if db := os.Getenv("CHAPTERCAST_DB"); db != "" {
		c.DBPath = db
	}
	if dir := os.Getenv("CHAPTERCAST_OUTPUT_DIR"); dir != "" {
		c.OutputDir = dir
	}
	if secret := os.Getenv("CHAPTERCAST_SECRET"); secret != "" {
		c.Secret = secret
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.DBPath, err = ExpandPath(c.DBPath); err != nil {
		return err
	}
	if c.OutputDir, err = ExpandPath(c.OutputDir); err != nil {
		return err
	}
	opts := c.Options()
	c.Defaults = Defaults{Format: opts.Format, Quality: opts.Quality}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if strings.TrimSpace(c.Downloader.Command) == "" {
		return errors.New("downloader.command is required")
	}
	if strings.TrimSpace(c.Normalizer.Command) == "" {
		return errors.New("normalizer.command is required")
	}
	if !slices.ContainsFunc(c.Normalizer.Args, func(a string) bool { return strings.Contains(a, mp3gain.FilePlaceholder) }) {
		return fmt.Errorf("normalizer.args must contain %s", mp3gain.FilePlaceholder)
	}
	if err := c.Options().Validate(); err != nil {
		return fmt.Errorf("defaults.format: %w", err)
	}
	switch c.Log.Format {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("log.format %q: want auto, console or json", c.Log.Format)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level)
	}
	return nil
}

// Options returns the default extraction options.
func (c *Config) Options() domain.Options {
	return domain.Options{Format: c.Defaults.Format, Quality: c.Defaults.Quality}.Normalize()
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ExpandPath expands a leading "~" and makes the path absolute.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return p, nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}
