package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

const (
	DefaultRedditBaseURL = "https://www.reddit.com"
	maxPageSize          = 100
)

// Reddit reads the public JSON listings of users and subreddits.
type Reddit struct {
	BaseURL string
	Client  *http.Client
}

func NewReddit(baseURL string, client *http.Client) *Reddit {
	if baseURL == "" {
		baseURL = DefaultRedditBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Reddit{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditVideo struct {
	FallbackURL string `json:"fallback_url"`
}

type redditMedia struct {
	RedditVideo *redditVideo `json:"reddit_video"`
}

type redditPost struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	URL          string       `json:"url"`
	Permalink    string       `json:"permalink"`
	Author       string       `json:"author"`
	Subreddit    string       `json:"subreddit"`
	Domain       string       `json:"domain"`
	CreatedUTC   float64      `json:"created_utc"`
	Score        int          `json:"score"`
	Over18       bool         `json:"over_18"`
	Stickied     bool         `json:"stickied"`
	IsSelf       bool         `json:"is_self"`
	SelfText     string       `json:"selftext"`
	SelfTextHTML string       `json:"selftext_html"`
	Media        *redditMedia `json:"media"`
	SecureMedia  *redditMedia `json:"secure_media"`
	GalleryData  *struct {
		Items []struct {
			MediaID string `json:"media_id"`
		} `json:"items"`
	} `json:"gallery_data"`
	MediaMetadata map[string]struct {
		MimeType string `json:"m"`
	} `json:"media_metadata"`
}

func (p *redditPost) submission(baseURL string) *downloader.Submission {
	sub := &downloader.Submission{
		ID:           p.ID,
		Title:        html.UnescapeString(p.Title),
		URL:          html.UnescapeString(p.URL),
		Author:       p.Author,
		Subreddit:    p.Subreddit,
		Domain:       p.Domain,
		Created:      time.Unix(int64(p.CreatedUTC), 0),
		Score:        p.Score,
		NSFW:         p.Over18,
		Stickied:     p.Stickied,
		IsSelf:       p.IsSelf,
		SelfText:     p.SelfText,
		SelfTextHTML: html.UnescapeString(p.SelfTextHTML),
	}
	if p.Permalink != "" {
		sub.Permalink = baseURL + p.Permalink
	}
	for _, m := range []*redditMedia{p.SecureMedia, p.Media} {
		if m != nil && m.RedditVideo != nil && m.RedditVideo.FallbackURL != "" {
			sub.VideoFallbackURL = m.RedditVideo.FallbackURL
			break
		}
	}
	if p.GalleryData != nil {
		for _, item := range p.GalleryData.Items {
			ext := "jpg"
			if meta, ok := p.MediaMetadata[item.MediaID]; ok {
				if parts := strings.SplitN(meta.MimeType, "/", 2); len(parts) == 2 {
					ext = parts[1]
				}
			}
			sub.GalleryItems = append(sub.GalleryItems, downloader.GalleryItem{MediaID: item.MediaID, Extension: ext})
		}
	}
	return sub
}

func (r *Reddit) path(q Query) (string, error) {
	name := url.PathEscape(q.Name)
	switch q.Kind {
	case downloader.TargetKindUser:
		return "/user/" + name + "/submitted.json", nil
	case downloader.TargetKindSubreddit:
		sort := q.Sort
		if sort == "" {
			sort = "new"
		}
		return "/r/" + name + "/" + url.PathEscape(sort) + ".json", nil
	default:
		return "", fmt.Errorf("reddit cannot enumerate target kind %q", q.Kind)
	}
}

func (r *Reddit) Validate(ctx context.Context, q Query) error {
	var about string
	switch q.Kind {
	case downloader.TargetKindUser:
		about = "/user/" + url.PathEscape(q.Name) + "/about.json"
	case downloader.TargetKindSubreddit:
		about = "/r/" + url.PathEscape(q.Name) + "/about.json"
	default:
		return fmt.Errorf("reddit cannot validate target kind %q", q.Kind)
	}
	var res struct {
		Kind string `json:"kind"`
		Data struct {
			IsSuspended bool `json:"is_suspended"`
		} `json:"data"`
	}
	if err := r.get(ctx, "validate", r.BaseURL+about, &res); err != nil {
		return err
	}
	if res.Data.IsSuspended {
		return downloader.NewError(downloader.KindValidation, "validate", r.BaseURL+about, fmt.Errorf("%v is suspended", q.Name))
	}
	return nil
}

// Submissions pages through the listing until the limit is reached, the listing ends, or visit returns false.
func (r *Reddit) Submissions(ctx context.Context, q Query, visit Visit) error {
	path, err := r.path(q)
	if err != nil {
		return err
	}
	remaining := q.Limit
	if remaining <= 0 {
		remaining = maxPageSize
	}
	after := ""
	for remaining > 0 {
		params := url.Values{}
		params.Set("raw_json", "1")
		params.Set("limit", strconv.Itoa(min(remaining, maxPageSize)))
		if q.Kind == downloader.TargetKindUser && q.Sort != "" {
			params.Set("sort", q.Sort)
		}
		if q.Sort == "top" || q.Sort == "controversial" {
			params.Set("t", q.TopPeriod)
		}
		if after != "" {
			params.Set("after", after)
		}
		var page listing
		if err := r.get(ctx, "list", r.BaseURL+path+"?"+params.Encode(), &page); err != nil {
			return err
		}
		for _, child := range page.Data.Children {
			if child.Kind != "" && child.Kind != "t3" {
				continue
			}
			if !visit(child.Data.submission(r.BaseURL)) {
				return nil
			}
			remaining--
			if remaining == 0 {
				return nil
			}
		}
		if page.Data.After == "" || len(page.Data.Children) == 0 {
			return nil
		}
		after = page.Data.After
	}
	return nil
}

func (r *Reddit) get(ctx context.Context, op string, reqURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return downloader.NewError(downloader.KindConnection, op, reqURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, reqURL, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return downloader.NewError(downloader.KindUnknown, op, reqURL, fmt.Errorf("invalid listing: %w", err))
	}
	return nil
}
