// Package feed enumerates the submissions of a target, newest first.
package feed

import (
	"context"
	"fmt"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

// Query describes one enumeration of a target's feed.
type Query struct {
	Name      string
	Kind      downloader.TargetKind
	FeedURL   string
	Sort      string
	TopPeriod string
	Limit     int
}

// Visit is called for each submission in feed order. Returning false stops the enumeration.
type Visit func(sub *downloader.Submission) bool

type Source interface {
	// Validate returns a downloader.KindValidation error if the target no longer exists or cannot be accessed.
	Validate(ctx context.Context, q Query) error
	Submissions(ctx context.Context, q Query, visit Visit) error
}

// Mux dispatches to a Source by target kind.
type Mux map[downloader.TargetKind]Source

func (m Mux) source(kind downloader.TargetKind) (Source, error) {
	if s, ok := m[kind]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no feed source for target kind %q", kind)
}

func (m Mux) Validate(ctx context.Context, q Query) error {
	s, err := m.source(q.Kind)
	if err != nil {
		return err
	}
	return s.Validate(ctx, q)
}

func (m Mux) Submissions(ctx context.Context, q Query, visit Visit) error {
	s, err := m.source(q.Kind)
	if err != nil {
		return err
	}
	return s.Submissions(ctx, q, visit)
}

// statusError classifies a feed HTTP status: missing or forbidden targets are invalid, server errors are transient.
func statusError(op string, url string, code int) error {
	status := &downloader.StatusError{Code: code, URL: url}
	switch {
	case code == 404 || code == 403 || code == 410:
		return downloader.NewError(downloader.KindValidation, op, url, status)
	case code >= 500 || code == 429:
		return downloader.NewError(downloader.KindConnection, op, url, status)
	default:
		return downloader.NewError(downloader.KindUnknown, op, url, status)
	}
}
