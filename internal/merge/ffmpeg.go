package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var ErrMuxerUnavailable = errors.New("muxing tool not available")

// A Muxer combines a video-only and an audio-only file into one output file.
type Muxer interface {
	Available() bool
	Mux(ctx context.Context, videoPath string, audioPath string, outputPath string) error
}

// FFmpeg muxes by stream copy with an external ffmpeg binary.
type FFmpeg struct {
	path string
}

// NewFFmpeg locates the binary once. An empty name means "ffmpeg" on $PATH.
func NewFFmpeg(name string) *FFmpeg {
	if name == "" {
		name = "ffmpeg"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return &FFmpeg{}
	}
	return &FFmpeg{path: path}
}

func (f *FFmpeg) Available() bool {
	return f.path != ""
}

func (f *FFmpeg) Path() string {
	return f.path
}

func (f *FFmpeg) Mux(ctx context.Context, videoPath string, audioPath string, outputPath string) error {
	if !f.Available() {
		return ErrMuxerUnavailable
	}
	cmd := exec.CommandContext(ctx, f.path,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c", "copy",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}
