package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

const Name = "youtube"

// Client is the part of youtube.Client used to resolve a video to a stream.
type Client interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

type Strategy struct {
	client Client
}

func New() *Strategy {
	return &Strategy{client: &youtube.Client{}}
}

func NewWithClient(client Client) *Strategy {
	return &Strategy{client: client}
}

func (s *Strategy) Extractor() downloader.Extractor {
	return downloader.Extractor{Name: Name, Keys: []string{"youtube.com", "youtu.be"}, Strategy: s}
}

func (s *Strategy) Extract(ctx context.Context, sub *downloader.Submission) ([]downloader.Item, error) {
	parsedURL, err := url.Parse(sub.URL)
	if err != nil {
		return nil, downloader.NewError(downloader.KindUnknown, Name, sub.URL, err)
	}
	videoID, err := extractVideoID(parsedURL)
	if err != nil {
		return nil, downloader.NewError(downloader.KindUnsupportedDomain, Name, sub.URL, err)
	}
	watchURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	videoDetails, err := s.client.GetVideoContext(ctx, watchURL)
	if err != nil {
		return nil, downloader.NewError(downloader.KindOf(err), Name, sub.URL, fmt.Errorf("failed to get video info: %w", err))
	}
	format := bestFormat(videoDetails.Formats.WithAudioChannels())
	if format == nil {
		return nil, downloader.NewError(downloader.KindUnknown, Name, sub.URL, fmt.Errorf("no format with audio for video %s", videoID))
	}
	streamURL, err := s.client.GetStreamURLContext(ctx, videoDetails, format)
	if err != nil {
		return nil, downloader.NewError(downloader.KindOf(err), Name, sub.URL, fmt.Errorf("failed to get stream: %w", err))
	}
	title := sub.Title
	if title == "" {
		title = videoDetails.Title
	}
	return []downloader.Item{{URL: streamURL, Title: title, Extension: extension(format)}}, nil
}

// bestFormat picks the highest bitrate format that carries both audio and video.
func bestFormat(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "video/") {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	return best
}

func extension(f *youtube.Format) string {
	mimeType := strings.SplitN(f.MimeType, ";", 2)[0]
	if parts := strings.SplitN(mimeType, "/", 2); len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}
	return "mp4"
}

// Extract video ID from YouTube URL.
//
// Allowed URL formats:
//
//	http(s?)://(www|m).youtube.com/(watch|details)?v={VIDEO_ID}
//	http(s?)://(www|m).youtube.com/v/{VIDEO_ID}
//	http(s?)://(www|m).youtube.com/shorts/{VIDEO_ID}
//	http(s?)://youtu.be/{VIDEO_ID}
func extractVideoID(url *url.URL) (string, error) {
	var id string
	switch url.Hostname() {
	case "youtube.com":
		fallthrough
	case "www.youtube.com":
		fallthrough
	case "m.youtube.com":
		if strings.HasPrefix(url.Path, "/v/") || strings.HasPrefix(url.Path, "/shorts/") {
			id = strings.SplitN(url.Path, "/", 3)[2]
		} else if url.Path == "/watch" || url.Path == "/details" {
			if url.Query().Has("v") {
				id = url.Query().Get("v")
			} else {
				return "", fmt.Errorf("missing ?v= query parameter")
			}
		}
	case "youtu.be":
		id = strings.Trim(url.Path, "/")
	default:
		return "", fmt.Errorf("unrecognised hostname")
	}
	if id == "" {
		return "", fmt.Errorf("could not extract video ID")
	}
	return id, nil
}
