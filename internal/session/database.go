package session

import (
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/database"
)

// Database is the persistence the pipeline needs. Every call is its own unit of work.
type Database interface {
	GetTargetByID(id database.RowID) (*database.Target, error)
	SetTargetActive(id database.RowID, active bool) error
	AdvanceDateLimit(id database.RowID, ts int64) (bool, error)
	CreateRun(downloadWorkers int) (*database.Run, error)
	FinishRun(run *database.Run) error
	CreatePost(post *database.Post) (bool, error)
	GetPostByURL(url string) (*database.Post, error)
	RetryPost(id database.RowID, runID database.RowID) error
	SetPostStatus(id database.RowID, status database.PostStatus, message string) error
	CreateContent(content *database.Content) error
	GetContent(id database.RowID) (*database.Content, error)
	ListPostContent(postID database.RowID) ([]database.Content, error)
	ResetContent(id database.RowID, runID database.RowID) (bool, error)
	FinishContent(id database.RowID, result database.ContentResult) (bool, error)
}

// DedupIndex records which Content row first downloaded each content hash.
type DedupIndex interface {
	Claim(hash string, contentID uint) (owner uint, claimed bool, err error)
	Release(hash string, contentID uint) error
}

var _ Database = (*database.Database)(nil)
