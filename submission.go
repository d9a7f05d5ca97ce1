package downloader

import "time"

// TargetKind distinguishes the feeds a Target can be enumerated from.
type TargetKind string

const (
	TargetKindUser      TargetKind = "user"
	TargetKindSubreddit TargetKind = "subreddit"
	TargetKindFeed      TargetKind = "feed"
)

// A Submission is one entry fetched from a target's feed. It is read-only as far as the pipeline is concerned.
type Submission struct {
	ID           string
	Title        string
	URL          string
	Permalink    string
	Author       string
	Subreddit    string
	Domain       string
	Created      time.Time
	Score        int
	NSFW         bool
	Stickied     bool
	IsSelf       bool
	SelfText     string
	SelfTextHTML string

	// VideoFallbackURL is the progressive video-only stream of a reddit-hosted video.
	VideoFallbackURL string
	// GalleryItems lists the media of a reddit gallery post in display order.
	GalleryItems []GalleryItem
}

type GalleryItem struct {
	MediaID   string
	Extension string
}

// WithLink returns a copy of the submission pointing at a link embedded in its body, for self-post extraction.
func (s Submission) WithLink(link string, title string) *Submission {
	s.URL = link
	s.Title = title
	s.IsSelf = false
	s.SelfText = ""
	s.SelfTextHTML = ""
	s.VideoFallbackURL = ""
	s.GalleryItems = nil
	return &s
}
