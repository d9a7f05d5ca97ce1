// Package imgur extracts images, videos and albums hosted on imgur, using the imgur API where the link is not direct.
package imgur

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/provider/direct"
)

const (
	Name           = "imgur"
	DefaultBaseURL = "https://api.imgur.com/3"
)

var ErrNoClientID = errors.New("imgur client id not configured")

type Config struct {
	ClientID string
	BaseURL  string
	Client   *http.Client
	Direct   direct.Config
}

func NewConfig(clientID string) *Config {
	return &Config{
		ClientID: clientID,
		BaseURL:  DefaultBaseURL,
		Client:   http.DefaultClient,
		Direct:   direct.NewConfig(),
	}
}

func (c *Config) Extractor() downloader.Extractor {
	return downloader.Extractor{Name: Name, Keys: []string{"imgur.com"}, Strategy: c}
}

type image struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
	Link  string `json:"link"`
	MP4   string `json:"mp4"`
}

type response[T any] struct {
	Data    T    `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

func (c *Config) Extract(ctx context.Context, sub *downloader.Submission) ([]downloader.Item, error) {
	parsedURL, err := url.Parse(sub.URL)
	if err != nil {
		return nil, downloader.NewError(downloader.KindUnknown, Name, sub.URL, err)
	}
	if item, err := c.Direct.Item(sub.URL, sub.Title); err == nil {
		return []downloader.Item{item}, nil
	}

	elements := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
	var images []image
	switch {
	case len(elements) == 2 && (elements[0] == "a" || elements[0] == "gallery"):
		var res response[[]image]
		if err := c.get(ctx, "album/"+elements[1]+"/images", &res); err != nil {
			return nil, downloader.NewError(downloader.KindOf(err), Name, sub.URL, err)
		}
		images = res.Data
	case len(elements) == 1 && elements[0] != "":
		var res response[image]
		if err := c.get(ctx, "image/"+strings.SplitN(elements[0], ".", 2)[0], &res); err != nil {
			return nil, downloader.NewError(downloader.KindOf(err), Name, sub.URL, err)
		}
		images = []image{res.Data}
	default:
		return nil, downloader.NewError(downloader.KindUnsupportedDomain, Name, sub.URL, fmt.Errorf("unrecognised imgur url"))
	}

	items := make([]downloader.Item, 0, len(images))
	for i, img := range images {
		link := img.Link
		if img.MP4 != "" {
			link = img.MP4
		}
		title := sub.Title
		if len(images) > 1 {
			title = fmt.Sprintf("%s %d", sub.Title, i+1)
		}
		item, err := c.Direct.Item(link, title)
		if err != nil {
			return nil, downloader.NewError(downloader.KindUnknown, Name, sub.URL, fmt.Errorf("image %v: %w", img.ID, err))
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Config) get(ctx context.Context, endpoint string, v any) error {
	if c.ClientID == "" {
		return ErrNoClientID
	}
	reqURL := strings.TrimRight(c.BaseURL, "/") + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.ClientID)
	resp, err := c.Client.Do(req)
	if err != nil {
		return downloader.ClassifyTransport("imgur api", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return rateLimitError(resp.Header)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &downloader.StatusError{Code: resp.StatusCode, URL: reqURL}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid imgur response: %w", err)
	}
	return nil
}

func rateLimitError(h http.Header) *downloader.RateLimitError {
	res := &downloader.RateLimitError{Service: Name}
	for _, key := range []string{"X-RateLimit-ClientRemaining", "X-RateLimit-UserRemaining"} {
		if h.Get(key) == "0" {
			res.QuotaExhausted = true
		}
	}
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil {
		res.RetryAfter = time.Duration(secs) * time.Second
	}
	return res
}
