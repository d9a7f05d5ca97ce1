package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

// RSS reads RSS and Atom feeds, for targets of kind feed.
type RSS struct {
	client *http.Client
}

func NewRSS(client *http.Client) *RSS {
	if client == nil {
		client = http.DefaultClient
	}
	return &RSS{client: client}
}

func (s *RSS) parse(ctx context.Context, q Query) (*gofeed.Feed, error) {
	if q.FeedURL == "" {
		return nil, downloader.NewError(downloader.KindValidation, "feed", q.Name, errors.New("feed target has no url"))
	}
	parser := gofeed.NewParser()
	parser.Client = s.client
	feed, err := parser.ParseURLWithContext(q.FeedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.As(err, &httpErr):
			return nil, statusError("feed", q.FeedURL, httpErr.StatusCode)
		case errors.Is(err, gofeed.ErrFeedTypeNotDetected):
			return nil, downloader.NewError(downloader.KindValidation, "feed", q.FeedURL, err)
		default:
			return nil, downloader.ClassifyTransport("feed", q.FeedURL, fmt.Errorf("failed to parse feed: %w", err))
		}
	}
	return feed, nil
}

func (s *RSS) Validate(ctx context.Context, q Query) error {
	_, err := s.parse(ctx, q)
	return err
}

func (s *RSS) Submissions(ctx context.Context, q Query, visit Visit) error {
	feed, err := s.parse(ctx, q)
	if err != nil {
		return err
	}
	for i, item := range feed.Items {
		if q.Limit > 0 && i >= q.Limit {
			break
		}
		if !visit(normalizeItem(feed, item)) {
			break
		}
	}
	return nil
}

func normalizeItem(feed *gofeed.Feed, item *gofeed.Item) *downloader.Submission {
	sub := &downloader.Submission{
		ID:        coalesce(item.GUID, item.Link),
		Title:     item.Title,
		URL:       item.Link,
		Permalink: item.Link,
		Subreddit: feed.Title,
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && mediaType(enc.Type) {
			sub.URL = enc.URL
			break
		}
	}
	switch {
	case item.PublishedParsed != nil:
		sub.Created = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		sub.Created = *item.UpdatedParsed
	default:
		sub.Created = time.Now()
	}
	if item.Author != nil {
		sub.Author = item.Author.Name
	}
	if sub.URL == "" {
		sub.IsSelf = true
		sub.SelfTextHTML = coalesce(item.Content, item.Description)
	}
	return sub
}

func mediaType(t string) bool {
	return strings.HasPrefix(t, "image/") || strings.HasPrefix(t, "video/") || strings.HasPrefix(t, "audio/")
}

// coalesce returns the first non-empty string from the provided values
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
