package session

import (
	"fmt"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/database"
)

// Event is a progress notification for whatever is presenting the session.
type Event interface {
	// Message is a short human-readable description of the event.
	Message() string
}

type StateChanged struct {
	From State
	To   State
}

func (e StateChanged) Message() string {
	return fmt.Sprintf("%v -> %v", e.From, e.To)
}

type TargetEnumerated struct {
	Target string
	Queued int
}

func (e TargetEnumerated) Message() string {
	return fmt.Sprintf("Queued %d post(s) from %v", e.Queued, e.Target)
}

type TargetInvalid struct {
	Target string
	Err    error
}

func (e TargetInvalid) Message() string {
	return fmt.Sprintf("%v is no longer valid and has been deactivated: %v", e.Target, e.Err)
}

type TargetFailed struct {
	Target string
	Err    error
}

func (e TargetFailed) Message() string {
	return fmt.Sprintf("Failed to enumerate %v: %v", e.Target, downloader.Describe(e.Err))
}

type PostFailed struct {
	Title  string
	Author string
	Target string
	URL    string
	Err    error
}

func (e PostFailed) Message() string {
	return fmt.Sprintf("Failed Extraction: %q by %v in %v (%v): %v", e.Title, e.Author, e.Target, e.URL, downloader.Describe(e.Err))
}

type ContentSaved struct {
	ContentID database.RowID
	URL       string
	Path      string
}

func (e ContentSaved) Message() string {
	return "Saved: " + e.Path
}

type ContentDuplicate struct {
	ContentID database.RowID
	URL       string
	Path      string
	OwnerID   database.RowID
	Removed   bool
}

func (e ContentDuplicate) Message() string {
	if e.Removed {
		return "Duplicate removed: " + e.URL
	}
	return "Duplicate: " + e.Path
}

type ContentFailed struct {
	ContentID database.RowID
	Title     string
	URL       string
	Target    string
	Err       error
}

func (e ContentFailed) Message() string {
	return fmt.Sprintf("Failed Download: %q in %v (%v): %v", e.Title, e.Target, e.URL, downloader.Describe(e.Err))
}

type RunFinished struct {
	Summary *Summary
}

func (e RunFinished) Message() string {
	c := e.Summary.Run.Counters
	msg := fmt.Sprintf("Finished: %d downloaded, %d duplicate, %d failed, %d merged, %d failure(s) in total",
		c.ContentDownloaded, c.ContentDuplicate, c.ContentFailed, c.Merged, len(e.Summary.Failures))
	if e.Summary.Run.Aborted {
		msg += " (aborted)"
	}
	return msg
}

// IsFailure selects the events that go in the end-of-run failure list, for use with filtered subscriptions.
func IsFailure(e Event) bool {
	switch e.(type) {
	case PostFailed, ContentFailed, TargetFailed, TargetInvalid:
		return true
	default:
		return false
	}
}
