package database

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

func newTestDatabase(t *testing.T) *Database {
	d, err := NewDatabase(DriverSQLite, filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require_.NoError(t, err)
	require_.NoError(t, d.Migrate())
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestMigrate_Idempotent(t *testing.T) {
	d := newTestDatabase(t)
	assert_.NoError(t, d.Migrate())
}

func TestNewDatabase_UnknownDriver(t *testing.T) {
	_, err := NewDatabase("oracle", "", zap.NewNop())
	assert_.ErrorIs(t, err, ErrUnknownDriver)
}

func TestTargets(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	d := newTestDatabase(t)

	target, created, err := d.GetOrCreateTarget("someone", downloader.TargetKindUser, DefaultSettings())
	require.NoError(err)
	assert.True(created)
	assert.NotEqual(NullRowID, target.ID)
	assert.True(target.Active)
	assert.Equal(SortNew, target.SortMethod)

	again, created, err := d.GetOrCreateTarget("someone", downloader.TargetKindUser, Settings{})
	require.NoError(err)
	assert.False(created)
	assert.Equal(target.ID, again.ID)
	assert.Equal(100, again.PostLimit, "existing settings are kept")

	_, created, err = d.GetOrCreateTarget("someone", downloader.TargetKindSubreddit, DefaultSettings())
	require.NoError(err)
	assert.True(created, "name is unique per kind")

	require.NoError(d.SetTargetActive(target.ID, false))
	active, err := d.ListTargets(true)
	require.NoError(err)
	require.Len(active, 1)
	assert.Equal(downloader.TargetKindSubreddit, active[0].Kind)
	all, err := d.ListTargets(false)
	require.NoError(err)
	assert.Len(all, 2)

	assert.ErrorIs(d.SetTargetActive(999, true), ErrNotFound)
	_, err = d.GetTargetByID(999)
	assert.ErrorIs(err, ErrNotFound)

	byName, err := d.GetTargetByName("someone", downloader.TargetKindUser)
	require.NoError(err)
	assert.False(byName.Active)
	byName.PostLimit = 5
	byName.Active = true
	byName.DateLimit = 12345
	require.NoError(d.UpdateTarget(byName))
	reloaded, err := d.GetTargetByID(byName.ID)
	require.NoError(err)
	assert.Equal(5, reloaded.PostLimit)
	assert.True(reloaded.Active)
	assert.Equal(int64(0), reloaded.DateLimit, "date limit only moves through AdvanceDateLimit")
}

func TestAdvanceDateLimit(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	d := newTestDatabase(t)

	target, _, err := d.GetOrCreateTarget("pics", downloader.TargetKindSubreddit, DefaultSettings())
	require.NoError(err)

	moved, err := d.AdvanceDateLimit(target.ID, 1200)
	require.NoError(err)
	assert.True(moved)
	moved, err = d.AdvanceDateLimit(target.ID, 900)
	require.NoError(err)
	assert.False(moved)
	moved, err = d.AdvanceDateLimit(target.ID, 1200)
	require.NoError(err)
	assert.False(moved)

	reloaded, err := d.GetTargetByID(target.ID)
	require.NoError(err)
	assert.Equal(int64(1200), reloaded.DateLimit)
}

func TestRuns(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	d := newTestDatabase(t)

	run, err := d.CreateRun(4)
	require.NoError(err)
	assert.Equal(1, run.ExtractionWorkers)
	assert.Nil(run.EndedAt)

	run.ContentDownloaded = 3
	run.Aborted = true
	require.NoError(d.FinishRun(run))
	reloaded, err := d.GetRun(run.ID)
	require.NoError(err)
	assert.NotNil(reloaded.EndedAt)
	assert.Equal(3, reloaded.ContentDownloaded)
	assert.True(reloaded.Aborted)
}

func TestCreatePost_UniqueURL(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	d := newTestDatabase(t)

	run, err := d.CreateRun(1)
	require.NoError(err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := d.CreatePost(&Post{URL: "https://example.com/a.jpg", RunID: run.ID, Created: time.Unix(100, 0)})
			assert.NoError(err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(1, createdCount)

	posts, err := d.ListPosts(run.ID)
	require.NoError(err)
	require.Len(posts, 1)
	assert.Equal(PostPending, posts[0].Status)

	require.NoError(d.SetPostStatus(posts[0].ID, PostFailed, "unsupported domain"))
	post, err := d.GetPostByURL("https://example.com/a.jpg")
	require.NoError(err)
	assert.Equal(PostFailed, post.Status)
	assert.Equal("unsupported domain", post.Error)

	_, err = d.GetPostByURL("https://example.com/missing")
	assert.ErrorIs(err, ErrNotFound)
}

func TestFinishContent_Monotonic(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	d := newTestDatabase(t)

	content := &Content{URL: "https://example.com/a.jpg", Extension: "jpg"}
	require.NoError(d.CreateContent(content))
	assert.Equal(ContentPending, content.Status)

	updated, err := d.FinishContent(content.ID, ContentResult{Status: ContentDownloaded, Hash: "abc", Path: "/tmp/a.jpg"})
	require.NoError(err)
	assert.True(updated)

	updated, err = d.FinishContent(content.ID, ContentResult{Status: ContentError, Error: "late"})
	require.NoError(err)
	assert.False(updated, "final statuses never revert")

	reloaded, err := d.GetContent(content.ID)
	require.NoError(err)
	assert.Equal(ContentDownloaded, reloaded.Status)
	assert.Equal("/tmp/a.jpg", reloaded.Path)

	reset, err := d.ResetContent(content.ID, 2)
	require.NoError(err)
	assert.False(reset, "downloaded content is never reset")
}

func TestResetContent(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	d := newTestDatabase(t)

	post := &Post{URL: "https://example.com/post", RunID: 1}
	_, err := d.CreatePost(post)
	require.NoError(err)
	failed := &Content{PostID: post.ID, RunID: 1, URL: "https://example.com/a.jpg"}
	pending := &Content{PostID: post.ID, RunID: 1, URL: "https://example.com/b.jpg"}
	require.NoError(d.CreateContent(failed))
	require.NoError(d.CreateContent(pending))
	_, err = d.FinishContent(failed.ID, ContentResult{Status: ContentError, Error: "HTTP 404"})
	require.NoError(err)

	for _, id := range []RowID{failed.ID, pending.ID} {
		reset, err := d.ResetContent(id, 2)
		require.NoError(err)
		assert.True(reset)
	}
	contents, err := d.ListPostContent(post.ID)
	require.NoError(err)
	require.Len(contents, 2)
	for _, c := range contents {
		assert.Equal(ContentPending, c.Status)
		assert.Empty(c.Error)
		assert.Equal(RowID(2), c.RunID)
	}

	require.NoError(d.RetryPost(post.ID, 2))
	reloaded, err := d.GetPostByURL(post.URL)
	require.NoError(err)
	assert.Equal(PostPending, reloaded.Status)
	assert.Equal(RowID(2), reloaded.RunID)
	assert.ErrorIs(d.RetryPost(1000, 2), ErrNotFound)
}
