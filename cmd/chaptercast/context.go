package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cwygoda/chaptercast/internal/adapter/mp3gain"
	"github.com/cwygoda/chaptercast/internal/adapter/sqlite"
	"github.com/cwygoda/chaptercast/internal/adapter/ytdlp"
	"github.com/cwygoda/chaptercast/internal/config"
	"github.com/cwygoda/chaptercast/internal/logging"
	"github.com/cwygoda/chaptercast/internal/pipeline"
)

// globalFlags override values from the config file and environment.
type globalFlags struct {
	configPath string
	outputDir  string
	dbPath     string
	logLevel   string
	logFormat  string
}

type commandContext struct {
	flags  globalFlags
	out    io.Writer
	errOut io.Writer

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// logFile, when set before the first logger call, tees the log into a file.
	logFile    string
	loggerOnce sync.Once
	log        *slog.Logger
	logErr     error
	logCloser  io.Closer
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, err := config.Load(strings.TrimSpace(c.flags.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		if err := c.applyFlags(cfg); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) applyFlags(cfg *config.Config) error {
	var err error
	if c.flags.outputDir != "" {
		if cfg.OutputDir, err = config.ExpandPath(c.flags.outputDir); err != nil {
			return err
		}
	}
	if c.flags.dbPath != "" {
		if cfg.DBPath, err = config.ExpandPath(c.flags.dbPath); err != nil {
			return err
		}
	}
	if c.flags.logLevel != "" {
		cfg.Log.Level = strings.ToLower(c.flags.logLevel)
	}
	if c.flags.logFormat != "" {
		cfg.Log.Format = strings.ToLower(c.flags.logFormat)
	}
	return cfg.Validate()
}

// logger writes to stderr so progress on stdout stays clean.
func (c *commandContext) logger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logErr = err
			return
		}
		c.log, c.logErr = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: c.errOut})
		if c.logErr != nil || c.logFile == "" {
			return
		}
		path, err := config.ExpandPath(c.logFile)
		if err != nil {
			c.logErr = err
			return
		}
		c.log, c.logCloser, c.logErr = logging.TeeFile(c.log, path)
	})
	return c.log, c.logErr
}

func (c *commandContext) closeLog() {
	if c.logCloser != nil {
		_ = c.logCloser.Close()
		c.logCloser = nil
	}
}

func (c *commandContext) newPipeline() (*pipeline.Pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.logger()
	if err != nil {
		return nil, err
	}
	return pipeline.New(
		cfg.OutputDir,
		ytdlp.NewResolver(cfg.Downloader.Command, cfg.Downloader.Args, logger),
		ytdlp.NewDownloader(cfg.Downloader.Command, cfg.Downloader.Args, logger),
		mp3gain.New(cfg.Normalizer.Command, cfg.Normalizer.Args, logger),
		logger,
	)
}

func (c *commandContext) openRepository() (*sqlite.Repository, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	repo, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	return repo, nil
}
