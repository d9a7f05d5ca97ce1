package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/database"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/logger"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	DownloadDir string         `yaml:"download_dir"`
	Database    DatabaseConfig `yaml:"database"`
	// DedupIndex is the bbolt file recording content hashes across runs.
	DedupIndex string         `yaml:"dedup_index"`
	Logger     logger.Config  `yaml:"logger"`
	Pipeline   PipelineConfig `yaml:"pipeline"`
	FFmpegPath string         `yaml:"ffmpeg_path"`
	Reddit     RedditConfig   `yaml:"reddit"`
	Imgur      ImgurConfig    `yaml:"imgur"`
	API        APIConfig      `yaml:"api"`
	// Defaults are the settings given to targets created from the command line.
	Defaults database.Settings `yaml:"defaults"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type MultiPartConfig struct {
	Enabled   bool  `yaml:"enabled"`
	Threshold int64 `yaml:"threshold"`
	Parts     int   `yaml:"parts"`
}

type PipelineConfig struct {
	DownloadWorkers           int             `yaml:"download_workers"`
	QueueSize                 int             `yaml:"queue_size"`
	MultiPart                 MultiPartConfig `yaml:"multipart"`
	RemoveDuplicates          bool            `yaml:"remove_duplicates"`
	SetFileModifiedDate       bool            `yaml:"set_file_modified_date"`
	ConnectionRetries         int             `yaml:"connection_retries"`
	RetryBackoff              time.Duration   `yaml:"retry_backoff"`
	HoldPollInterval          time.Duration   `yaml:"hold_poll_interval"`
	RenameInvalidTargetFolder bool            `yaml:"rename_invalid_target_folder"`
	UserAgent                 string          `yaml:"user_agent"`
	RequestTimeout            time.Duration   `yaml:"request_timeout"`
}

type RedditConfig struct {
	BaseURL string `yaml:"base_url"`
}

type ImgurConfig struct {
	ClientID string `yaml:"client_id"`
	BaseURL  string `yaml:"base_url"`
}

type APIConfig struct {
	// Listen is the address of the control server; empty disables it.
	Listen string `yaml:"listen"`
}

func Default() *Config {
	return &Config{
		DownloadDir: "downloads",
		Database: DatabaseConfig{
			Driver: database.DriverSQLite,
			DSN:    "reddit-downloader.db",
		},
		DedupIndex: "reddit-downloader.hashes",
		Pipeline: PipelineConfig{
			DownloadWorkers: 4,
			QueueSize:       64,
			MultiPart: MultiPartConfig{
				Threshold: 20 << 20,
				Parts:     4,
			},
			SetFileModifiedDate: true,
			ConnectionRetries:   3,
			RetryBackoff:        2 * time.Second,
			HoldPollInterval:    500 * time.Millisecond,
			UserAgent:           "reddit-downloader/1.0",
		},
		FFmpegPath: "ffmpeg",
		Reddit: RedditConfig{
			BaseURL: "https://www.reddit.com",
		},
		Defaults: database.DefaultSettings(),
	}
}

// Load reads a YAML config file over the defaults. An empty path gives the defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %v: %w", path, err)
		}
	}
	cfg.Logger.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalid, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("%w: database dsn is required", ErrInvalid)
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("%w: download_dir is required", ErrInvalid)
	}
	if c.Pipeline.DownloadWorkers < 1 {
		return fmt.Errorf("%w: download_workers must be at least 1", ErrInvalid)
	}
	if c.Pipeline.ConnectionRetries < 0 {
		return fmt.Errorf("%w: connection_retries must not be negative", ErrInvalid)
	}
	if c.Pipeline.MultiPart.Enabled && c.Pipeline.MultiPart.Parts < 2 {
		return fmt.Errorf("%w: multipart needs at least 2 parts", ErrInvalid)
	}
	switch c.Defaults.SortMethod {
	case database.SortNew, database.SortHot, database.SortTop, database.SortRising, database.SortControversial:
	default:
		return fmt.Errorf("%w: unknown sort method %q", ErrInvalid, c.Defaults.SortMethod)
	}
	return nil
}
