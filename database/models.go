package database

import (
	"time"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/filter"
)

type RowID = uint

const NullRowID RowID = 0

// Settings are the per-target options controlling enumeration, filtering and naming.
type Settings struct {
	PostLimit            int                   `gorm:"column:post_limit" yaml:"post_limit" json:"post_limit"`
	SortMethod           string                `gorm:"column:sort_method" yaml:"sort_method" json:"sort_method"`
	TopPeriod            string                `gorm:"column:top_period" yaml:"top_period" json:"top_period"`
	ScoreLimit           int                   `gorm:"column:score_limit" yaml:"score_limit" json:"score_limit"`
	ScoreOperator        filter.ScoreOperator  `gorm:"column:score_operator" yaml:"score_operator" json:"score_operator"`
	NSFWPolicy           filter.NSFWPolicy     `gorm:"column:nsfw_policy" yaml:"nsfw_policy" json:"nsfw_policy"`
	SelfPostPolicy       filter.SelfPostPolicy `gorm:"column:self_post_policy" yaml:"self_post_policy" json:"self_post_policy"`
	HashDedup            bool                  `gorm:"column:hash_dedup" yaml:"hash_dedup" json:"hash_dedup"`
	PathTemplate         string                `gorm:"column:path_template" yaml:"path_template" json:"path_template"`
	FileTemplate         string                `gorm:"column:file_template" yaml:"file_template" json:"file_template"`
	ExtractSelfPostLinks bool                  `gorm:"column:extract_self_post_links" yaml:"extract_self_post_links" json:"extract_self_post_links"`
}

const (
	SortNew           = "new"
	SortHot           = "hot"
	SortTop           = "top"
	SortRising        = "rising"
	SortControversial = "controversial"
)

func DefaultSettings() Settings {
	return Settings{
		PostLimit:            100,
		SortMethod:           SortNew,
		TopPeriod:            "all",
		ScoreOperator:        filter.ScoreAny,
		NSFWPolicy:           filter.NSFWInclude,
		SelfPostPolicy:       filter.SelfPostAll,
		HashDedup:            true,
		PathTemplate:         downloader.DefaultPathTemplate,
		FileTemplate:         downloader.DefaultFileTemplate,
		ExtractSelfPostLinks: true,
	}
}

type Target struct {
	ID      RowID                 `gorm:"primaryKey" json:"id"`
	Name    string                `gorm:"column:name;uniqueIndex:idx_target_kind_name" json:"name"`
	Kind    downloader.TargetKind `gorm:"column:kind;uniqueIndex:idx_target_kind_name" json:"kind"`
	FeedURL string                `gorm:"column:feed_url" json:"feed_url,omitempty"`
	Settings `gorm:"embedded"`
	// DateLimit is the unix time of the newest submission seen, and only ever moves forward.
	DateLimit         int64     `gorm:"column:date_limit" json:"date_limit"`
	AbsoluteDateLimit int64     `gorm:"column:absolute_date_limit" json:"absolute_date_limit"`
	Active            bool      `gorm:"column:active" json:"active"`
	DownloadEnabled   bool      `gorm:"column:download_enabled" json:"download_enabled"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Target) TableName() string {
	return "target"
}

func (t *Target) Criteria() filter.Criteria {
	return filter.Criteria{
		DateLimit:         t.DateLimit,
		AbsoluteDateLimit: t.AbsoluteDateLimit,
		ScoreLimit:        t.ScoreLimit,
		ScoreOperator:     t.ScoreOperator,
		NSFW:              t.NSFWPolicy,
		SelfPost:          t.SelfPostPolicy,
	}
}

func (t *Target) String() string {
	return string(t.Kind) + "/" + t.Name
}

type Run struct {
	ID                RowID      `gorm:"primaryKey" json:"id"`
	StartedAt         time.Time  `gorm:"column:started_at" json:"started_at"`
	EndedAt           *time.Time `gorm:"column:ended_at" json:"ended_at,omitempty"`
	DownloadWorkers   int        `gorm:"column:download_workers" json:"download_workers"`
	ExtractionWorkers int        `gorm:"column:extraction_workers" json:"extraction_workers"`
	Counters          `gorm:"embedded"`
	Aborted           bool `gorm:"column:aborted" json:"aborted"`
}

func (Run) TableName() string {
	return "run"
}

// Counters are the aggregate totals of a run.
type Counters struct {
	SubmissionsQueued int `gorm:"column:submissions_queued" json:"submissions_queued"`
	PostsExtracted    int `gorm:"column:posts_extracted" json:"posts_extracted"`
	PostsFailed       int `gorm:"column:posts_failed" json:"posts_failed"`
	ContentDownloaded int `gorm:"column:content_downloaded" json:"content_downloaded"`
	ContentDuplicate  int `gorm:"column:content_duplicate" json:"content_duplicate"`
	ContentFailed     int `gorm:"column:content_failed" json:"content_failed"`
	Merged            int `gorm:"column:merged" json:"merged"`
}

type PostStatus string

const (
	PostPending   PostStatus = "pending"
	PostSucceeded PostStatus = "succeeded"
	PostFailed    PostStatus = "failed"
)

type Post struct {
	ID        RowID      `gorm:"primaryKey"`
	URL       string     `gorm:"column:url;uniqueIndex"`
	Title     string     `gorm:"column:title"`
	Author    string     `gorm:"column:author"`
	Subreddit string     `gorm:"column:subreddit"`
	Created   time.Time  `gorm:"column:created"`
	TargetID  RowID      `gorm:"column:target_id;index"`
	RunID     RowID      `gorm:"column:run_id;index"`
	Status    PostStatus `gorm:"column:status"`
	Error     string     `gorm:"column:error"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Post) TableName() string {
	return "post"
}

type ContentStatus string

const (
	ContentPending    ContentStatus = "pending"
	ContentDownloaded ContentStatus = "downloaded"
	ContentDuplicate  ContentStatus = "duplicate"
	ContentError      ContentStatus = "error"
)

type Content struct {
	ID          RowID                `gorm:"primaryKey"`
	PostID      RowID                `gorm:"column:post_id;index"`
	TargetID    RowID                `gorm:"column:target_id"`
	RunID       RowID                `gorm:"column:run_id;index"`
	URL         string               `gorm:"column:url"`
	Directory   string               `gorm:"column:directory"`
	Title       string               `gorm:"column:title"`
	Extension   string               `gorm:"column:extension"`
	Status      ContentStatus        `gorm:"column:status;index"`
	Error       string               `gorm:"column:error"`
	Hash        string               `gorm:"column:hash;index"`
	Path        string               `gorm:"column:path"`
	HashDedup   bool                 `gorm:"column:hash_dedup"`
	MergeID     string               `gorm:"column:merge_id"`
	MergeRole   downloader.MergeRole `gorm:"column:merge_role"`
	PostCreated time.Time            `gorm:"column:post_created"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Content) TableName() string {
	return "content"
}

// ContentResult is the final state the download stage records for a Content row.
type ContentResult struct {
	Status ContentStatus
	Error  string
	Hash   string
	Path   string
}
