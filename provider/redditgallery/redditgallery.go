package redditgallery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

const Name = "redditgallery"

var ErrEmptyGallery = errors.New("gallery has no items")

type Strategy struct {
	// MediaBaseURL is where gallery media is served from.
	MediaBaseURL string
}

func New() *Strategy {
	return &Strategy{MediaBaseURL: "https://i.redd.it"}
}

func (s *Strategy) Extractor() downloader.Extractor {
	return downloader.Extractor{Name: Name, Keys: []string{"reddit.com/gallery"}, Strategy: s}
}

func (s *Strategy) Extract(ctx context.Context, sub *downloader.Submission) ([]downloader.Item, error) {
	if len(sub.GalleryItems) == 0 {
		return nil, downloader.NewError(downloader.KindUnknown, Name, sub.URL, ErrEmptyGallery)
	}
	items := make([]downloader.Item, 0, len(sub.GalleryItems))
	for i, g := range sub.GalleryItems {
		ext := strings.ToLower(strings.TrimPrefix(g.Extension, "."))
		if ext == "" {
			ext = "jpg"
		}
		items = append(items, downloader.Item{
			URL:       fmt.Sprintf("%s/%s.%s", strings.TrimRight(s.MediaBaseURL, "/"), g.MediaID, ext),
			Title:     fmt.Sprintf("%s %d", sub.Title, i+1),
			Extension: ext,
		})
	}
	return items, nil
}
