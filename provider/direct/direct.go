package direct

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/generic"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/util"
)

const Name = "direct"

type Config struct {
	Protocols  generic.Set[string]
	Extensions generic.Set[string]
}

func NewConfig() Config {
	return Config{
		Protocols: generic.NewSet(
			"http",
			"https",
		),
		Extensions: generic.NewSet(
			"flv",
			"gif",
			"gifv",
			"jpeg",
			"jpg",
			"m4v",
			"mkv",
			"mov",
			"mp3",
			"mp4",
			"png",
			"webm",
			"webp",
		),
	}
}

// Item converts a direct media link to an Item, rewriting .gifv links to the mp4 they stand for.
func (c *Config) Item(rawURL string, title string) (downloader.Item, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return downloader.Item{}, err
	}
	if !c.Protocols.Contains(strings.ToLower(parsedURL.Scheme)) {
		return downloader.Item{}, fmt.Errorf("unknown URL scheme %v", parsedURL.Scheme)
	}
	ext, err := util.ExtensionFromURLString(rawURL)
	if err != nil {
		return downloader.Item{}, err
	}
	if !c.Extensions.Contains(ext) {
		return downloader.Item{}, fmt.Errorf("unknown file extension %v", ext)
	}
	if ext == "gifv" {
		parsedURL.Path = parsedURL.Path[:len(parsedURL.Path)-len(".gifv")] + ".mp4"
		rawURL = parsedURL.String()
		ext = "mp4"
	}
	return downloader.Item{URL: rawURL, Title: title, Extension: ext}, nil
}

func (c *Config) Extract(ctx context.Context, sub *downloader.Submission) ([]downloader.Item, error) {
	item, err := c.Item(sub.URL, sub.Title)
	if err != nil {
		return nil, downloader.NewError(downloader.KindUnsupportedDomain, "direct", sub.URL, err)
	}
	return []downloader.Item{item}, nil
}

// Register installs the direct strategy as the registry's extension fallback.
func (c Config) Register(r *downloader.Registry) {
	r.SetFallback(Name, &c, c.Extensions)
}
