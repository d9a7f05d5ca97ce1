// Package providers assembles the ordered set of extraction strategies.
package providers

import (
	"net/http"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/provider/direct"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/provider/imgur"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/provider/redditgallery"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/provider/redditvideo"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/provider/youtube"
)

type Config struct {
	ImgurClientID string
	ImgurBaseURL  string
	HTTPClient    *http.Client
}

// NewRegistry builds the registry with more specific matchers ahead of general ones, and direct links as fallback.
func NewRegistry(cfg Config) *downloader.Registry {
	r := &downloader.Registry{}
	r.MustAdd(redditvideo.New().Extractor().WithPriority(-20))
	r.MustAdd(redditgallery.New().Extractor().WithPriority(-10))

	imgurConfig := imgur.NewConfig(cfg.ImgurClientID)
	if cfg.ImgurBaseURL != "" {
		imgurConfig.BaseURL = cfg.ImgurBaseURL
	}
	if cfg.HTTPClient != nil {
		imgurConfig.Client = cfg.HTTPClient
	}
	r.MustAdd(imgurConfig.Extractor())
	r.MustAdd(youtube.New().Extractor())

	direct.NewConfig().Register(r)
	return r
}
