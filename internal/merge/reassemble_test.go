package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

type fakeMuxer struct {
	mu        sync.Mutex
	available bool
	err       error
	calls     [][3]string
}

func (m *fakeMuxer) Available() bool {
	return m.available
}

func (m *fakeMuxer) Mux(ctx context.Context, videoPath string, audioPath string, outputPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, [3]string{videoPath, audioPath, outputPath})
	if m.err != nil {
		return m.err
	}
	video, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, append(video, audio...), 0644)
}

func writeFile(t *testing.T, path string, content string) string {
	require_.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestOutputName(t *testing.T) {
	assert := assert_.New(t)
	dir, name, ext := OutputName(filepath.Join("a", "b", "Clip (video).mp4"), " (video)")
	assert.Equal(filepath.Join("a", "b"), dir)
	assert.Equal("Clip", name)
	assert.Equal("mp4", ext)
	_, name, _ = OutputName("Clip (video)(1).mp4", " (video)")
	assert.Equal("Clip(1)", name)
}

func TestReassembler_Run(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	dir := t.TempDir()

	registry := NewRegistry()
	postDate := time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)
	video := writeFile(t, filepath.Join(dir, "Clip (video).mp4"), "V")
	audio := writeFile(t, filepath.Join(dir, "Clip (audio).mp3"), "A")
	registry.SetPart("m1", downloader.MergeRoleVideo, video, postDate)
	registry.SetPart("m1", downloader.MergeRoleAudio, audio, postDate)
	registry.SetPart("m2", downloader.MergeRoleVideo, writeFile(t, filepath.Join(dir, "Half (video).mp4"), "V"), postDate)

	muxer := &fakeMuxer{available: true}
	report := NewReassembler(muxer, " (video)", true).Run(context.Background(), registry)

	require.Len(report.Merged, 1)
	merged := filepath.Join(dir, "Clip.mp4")
	assert.Equal(merged, report.Merged[0])
	assert.Len(muxer.calls, 1)
	data, err := os.ReadFile(merged)
	require.NoError(err)
	assert.Equal("VA", string(data))
	info, err := os.Stat(merged)
	require.NoError(err)
	assert.True(info.ModTime().Equal(postDate))
	assert.NoFileExists(video)
	assert.NoFileExists(audio)

	require.Len(report.Incomplete, 1)
	assert.Equal("m2", report.Incomplete[0].ID)
	assert.Empty(report.Failed)
	assert.FileExists(filepath.Join(dir, "Half (video).mp4"))
	assert.Equal(1, registry.Len(), "incomplete sets are kept")
}

func TestReassembler_MuxFailureKeepsParts(t *testing.T) {
	assert := assert_.New(t)
	dir := t.TempDir()

	registry := NewRegistry()
	video := writeFile(t, filepath.Join(dir, "X (video).mp4"), "V")
	audio := writeFile(t, filepath.Join(dir, "X (audio).mp3"), "A")
	registry.SetPart("m", downloader.MergeRoleVideo, video, time.Time{})
	registry.SetPart("m", downloader.MergeRoleAudio, audio, time.Time{})

	report := NewReassembler(&fakeMuxer{available: true, err: errors.New("bad stream")}, " (video)", false).Run(context.Background(), registry)
	assert.Empty(report.Merged)
	assert.Len(report.Failed, 1)
	assert.FileExists(video)
	assert.FileExists(audio)
	assert.NoFileExists(filepath.Join(dir, "X.mp4"))
}

func TestReassembler_Unavailable(t *testing.T) {
	assert := assert_.New(t)
	registry := NewRegistry()
	registry.SetPart("m", downloader.MergeRoleVideo, "/v", time.Time{})
	registry.SetPart("m", downloader.MergeRoleAudio, "/a", time.Time{})

	muxer := &fakeMuxer{}
	report := NewReassembler(muxer, " (video)", false).Run(context.Background(), registry)
	assert.True(report.Skipped)
	assert.Len(report.Failed, 1)
	assert.ErrorIs(report.Failed[0].Err, ErrMuxerUnavailable)
	assert.Empty(muxer.calls)
}

func TestFFmpeg_Missing(t *testing.T) {
	f := NewFFmpeg("definitely-not-a-real-ffmpeg-binary")
	assert_.False(t, f.Available())
	assert_.ErrorIs(t, f.Mux(context.Background(), "v", "a", "o"), ErrMuxerUnavailable)
}
