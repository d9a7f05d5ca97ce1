package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/database"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/filter"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require_.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	assert := assert_.New(t)
	cfg, err := Load("")
	require_.NoError(t, err)
	assert.Equal(database.DriverSQLite, cfg.Database.Driver)
	assert.Equal(4, cfg.Pipeline.DownloadWorkers)
	assert.Equal("info", cfg.Logger.Level)
	assert.Equal(database.DefaultSettings(), cfg.Defaults)
}

func TestLoad_Overrides(t *testing.T) {
	assert := assert_.New(t)
	path := writeConfig(t, `
download_dir: /srv/reddit
database:
  driver: postgres
  dsn: host=localhost dbname=reddit
pipeline:
  download_workers: 8
  retry_backoff: 5s
  multipart:
    enabled: true
    parts: 3
imgur:
  client_id: abc123
logger:
  level: debug
  file: /var/log/reddit-downloader.log
defaults:
  nsfw_policy: exclude
  hash_dedup: false
`)
	cfg, err := Load(path)
	require_.NoError(t, err)
	assert.Equal("/srv/reddit", cfg.DownloadDir)
	assert.Equal(database.DriverPostgres, cfg.Database.Driver)
	assert.Equal(8, cfg.Pipeline.DownloadWorkers)
	assert.Equal(5*time.Second, cfg.Pipeline.RetryBackoff)
	assert.True(cfg.Pipeline.MultiPart.Enabled)
	assert.Equal(3, cfg.Pipeline.MultiPart.Parts)
	assert.Equal(int64(20<<20), cfg.Pipeline.MultiPart.Threshold, "unset nested fields keep their defaults")
	assert.Equal("abc123", cfg.Imgur.ClientID)
	assert.Equal("debug", cfg.Logger.Level)
	assert.Equal("console", cfg.Logger.Format)
	assert.Equal(filter.NSFWExclude, cfg.Defaults.NSFWPolicy)
	assert.False(cfg.Defaults.HashDedup)
	assert.Equal(database.SortNew, cfg.Defaults.SortMethod)
	// Unmentioned sections keep their defaults
	assert.Equal("https://www.reddit.com", cfg.Reddit.BaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	for name, content := range map[string]string{
		"driver":    "database:\n  driver: oracle\n",
		"workers":   "pipeline:\n  download_workers: 0\n",
		"sort":      "defaults:\n  sort_method: best\n",
		"multipart": "pipeline:\n  multipart:\n    enabled: true\n    parts: 1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert_.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert_.ErrorIs(t, err, os.ErrNotExist)
}
