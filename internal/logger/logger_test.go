package logger

import (
	"os"
	"path/filepath"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	log, err := New(Config{})
	require_.NoError(t, err)
	assert_.True(t, log.Core().Enabled(0))
	assert_.False(t, log.Core().Enabled(-1), "debug should be disabled at the default level")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert_.Error(t, err)
}

func TestNew_InvalidTimezone(t *testing.T) {
	_, err := New(Config{Timezone: "Nowhere/Special"})
	assert_.Error(t, err)
}

func TestNew_File(t *testing.T) {
	assert := assert_.New(t)
	path := filepath.Join(t.TempDir(), "downloader.log")
	log, err := New(Config{Level: "debug", File: path})
	require_.NoError(t, err)
	log.Named("test").Debug("hello file")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require_.NoError(t, err)
	assert.Contains(string(data), `"message":"hello file"`)
	assert.Contains(string(data), `"logger":"test"`)
}
