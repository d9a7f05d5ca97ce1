// Package redditvideo splits reddit-hosted videos into the separate video and audio streams reddit serves them as.
package redditvideo

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

const (
	Name = "redditvideo"
	// VideoMarker is appended to the video half's file name, and stripped from the merged output.
	VideoMarker = " (video)"
	AudioMarker = " (audio)"
)

type Strategy struct {
	NewID func() string
}

func New() *Strategy {
	return &Strategy{NewID: uuid.NewString}
}

func (s *Strategy) Extractor() downloader.Extractor {
	return downloader.Extractor{Name: Name, Keys: []string{"v.redd.it"}, Strategy: s}
}

func (s *Strategy) Extract(ctx context.Context, sub *downloader.Submission) ([]downloader.Item, error) {
	videoURL := sub.VideoFallbackURL
	if videoURL == "" {
		return nil, downloader.NewError(downloader.KindUnknown, Name, sub.URL, fmt.Errorf("submission has no video stream"))
	}
	audioURL, err := AudioURL(videoURL)
	if err != nil {
		return nil, downloader.NewError(downloader.KindUnknown, Name, sub.URL, err)
	}
	mergeID := s.NewID()
	return []downloader.Item{
		{
			URL:       videoURL,
			Title:     sub.Title,
			Extension: "mp4",
			Suffix:    VideoMarker,
			MergeID:   mergeID,
			MergeRole: downloader.MergeRoleVideo,
		},
		{
			URL:       audioURL,
			Title:     sub.Title,
			Extension: "mp3",
			Suffix:    AudioMarker,
			MergeID:   mergeID,
			MergeRole: downloader.MergeRoleAudio,
		},
	}, nil
}

// AudioURL derives the audio stream location from the video stream, which lives alongside it as DASH_audio.mp4.
func AudioURL(videoURL string) (string, error) {
	parsedURL, err := url.Parse(videoURL)
	if err != nil {
		return "", err
	}
	dir := path.Dir(parsedURL.Path)
	if dir == "/" || dir == "." || !strings.HasPrefix(path.Base(parsedURL.Path), "DASH_") {
		return "", fmt.Errorf("unrecognised video stream url %v", videoURL)
	}
	parsedURL.Path = path.Join(dir, "DASH_audio.mp4")
	parsedURL.RawQuery = ""
	return parsedURL.String(), nil
}
