package session

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/database"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/generic"
)

// runExtraction is the single extraction goroutine. Sentinels are forwarded to the download stage before they are
// marked done, so the download stage can never look idle while this stage still owes it work.
func (s *Session) runExtraction() {
	log := s.log.Named("extract")
	namings := make(map[database.RowID]*downloader.Naming)
	for m := range s.extract.queue.Receive() {
		switch m.kind {
		case endMessage:
			s.download.signal(endMessage)
			s.extract.done()
			return
		case holdMessage, releaseMessage:
			s.extract.holding.Store(m.kind == holdMessage)
			s.download.signal(m.kind)
		default:
			if s.stopping.IsSet() {
				log.Debugw("stopping, dropping submission", "url", m.value.sub.URL)
			} else {
				s.extractSubmission(log, namings, m.value)
			}
		}
		s.extract.done()
	}
}

func (s *Session) extractSubmission(log *zap.SugaredLogger, namings map[database.RowID]*downloader.Naming, job submissionJob) {
	sub, target := job.sub, &job.target
	postURL := sub.URL
	if postURL == "" {
		postURL = sub.Permalink
	}
	log = log.With("target", target.String(), "url", postURL)
	runID := s.run.Get().ID

	post := &database.Post{
		URL:       postURL,
		Title:     sub.Title,
		Author:    sub.Author,
		Subreddit: sub.Subreddit,
		Created:   sub.Created,
		TargetID:  target.ID,
		RunID:     runID,
	}
	created, err := s.config.Database.CreatePost(post)
	if err != nil {
		log.Errorw("failed to record post", "error", err)
		s.postFailed(target, sub, postURL, err)
		return
	}
	var previous map[string]database.Content
	if !created {
		if post, previous, err = s.retryPost(log, postURL, runID); err != nil {
			log.Errorw("failed to load recorded post", "error", err)
			s.postFailed(target, sub, postURL, err)
			return
		} else if post == nil {
			return
		}
	}

	naming, ok := namings[target.ID]
	if !ok {
		if naming, err = downloader.NewNaming(target.PathTemplate, target.FileTemplate); err != nil {
			s.finishPost(log, post, target, sub, err)
			return
		}
		namings[target.ID] = naming
	}

	items, extractErr := s.extractItems(target, sub)
	// Items found again keep the merge set their earlier parts were recorded under
	mergeIDs := make(map[string]string)
	for _, item := range items {
		if row, ok := previous[item.URL]; ok && row.MergeID != "" && item.MergeID != "" {
			mergeIDs[item.MergeID] = row.MergeID
		}
	}
	var ids []database.RowID
	var known []database.Content
	mergeSets := generic.NewSet[string]()
	for _, item := range items {
		if row, ok := previous[item.URL]; ok {
			known = append(known, row)
			continue
		}
		if id, ok := mergeIDs[item.MergeID]; ok {
			item.MergeID = id
		}
		content, err := s.newContent(naming, post, target, sub, item)
		if err != nil {
			extractErr = multierror.Append(extractErr, err)
			continue
		}
		if err := s.config.Database.CreateContent(content); err != nil {
			extractErr = multierror.Append(extractErr, err)
			continue
		}
		if content.MergeID != "" {
			mergeSets.Add(content.MergeID)
		}
		ids = append(ids, content.ID)
	}
	ids = append(ids, s.resumeContent(log, known, runID, mergeSets)...)
	s.finishPost(log, post, target, sub, extractErr)
	s.queueContent(log, ids)
	log.Debugw("post extracted", "items", len(ids))
}

// retryPost decides what to do with a post URL that is already recorded. A post first seen in this run is skipped.
// A failed or unfinished post from an earlier run is returned to be extracted again, with its Content rows by URL. A
// post that succeeded earlier only has its unfinished Content queued again, and nil is returned.
func (s *Session) retryPost(log *zap.SugaredLogger, postURL string, runID database.RowID) (*database.Post, map[string]database.Content, error) {
	post, err := s.config.Database.GetPostByURL(postURL)
	if err != nil {
		return nil, nil, err
	}
	if post.RunID == runID {
		log.Debug("post already recorded, skipping")
		return nil, nil, nil
	}
	contents, err := s.config.Database.ListPostContent(post.ID)
	if err != nil {
		return nil, nil, err
	}
	if post.Status == database.PostSucceeded {
		ids := s.resumeContent(log, contents, runID, generic.NewSet[string]())
		if len(ids) == 0 {
			log.Debug("post already downloaded, skipping")
		} else {
			log.Infow("queueing unfinished content of earlier run", "post_id", post.ID, "items", len(ids))
			s.queueContent(log, ids)
		}
		return nil, nil, nil
	}

	log.Infow("extracting post again", "post_id", post.ID, "previous_status", post.Status)
	if err := s.config.Database.RetryPost(post.ID, runID); err != nil {
		return nil, nil, err
	}
	post.RunID, post.Status, post.Error = runID, database.PostPending, ""
	previous := make(map[string]database.Content, len(contents))
	for _, c := range contents {
		previous[c.URL] = c
	}
	return post, previous, nil
}

// resumeContent moves the unfinished rows among contents into this run, returning their ids. Parts already on disk of
// any merge set in mergeSets, or of one a resumed row belongs to, are put back into the merge registry.
func (s *Session) resumeContent(log *zap.SugaredLogger, contents []database.Content, runID database.RowID, mergeSets generic.Set[string]) []database.RowID {
	var ids []database.RowID
	for _, c := range contents {
		if c.Status != database.ContentPending && c.Status != database.ContentError {
			continue
		}
		reset, err := s.config.Database.ResetContent(c.ID, runID)
		if err != nil {
			log.Errorw("failed to reset content", "content_id", c.ID, "error", err)
			continue
		} else if !reset {
			continue
		}
		if c.MergeID != "" {
			mergeSets.Add(c.MergeID)
		}
		ids = append(ids, c.ID)
	}
	for _, id := range mergeSets.ToSlice() {
		s.merges.Create(id)
	}
	for _, c := range contents {
		if c.Status != database.ContentDownloaded || c.MergeID == "" || !mergeSets.Contains(c.MergeID) {
			continue
		}
		if _, err := os.Stat(c.Path); err != nil {
			log.Warnw("downloaded part is missing", "content_id", c.ID, "path", c.Path)
			continue
		}
		s.merges.SetPart(c.MergeID, c.MergeRole, c.Path, c.PostCreated)
	}
	return ids
}

func (s *Session) queueContent(log *zap.SugaredLogger, ids []database.RowID) {
	for _, id := range ids {
		if !s.download.push(id) {
			log.Warnw("download queue closed, dropping content", "content_id", id)
		}
	}
}

func (s *Session) finishPost(log *zap.SugaredLogger, post *database.Post, target *database.Target, sub *downloader.Submission, err error) {
	status, message := database.PostSucceeded, ""
	if err != nil {
		status, message = database.PostFailed, err.Error()
	}
	if err := s.config.Database.SetPostStatus(post.ID, status, message); err != nil {
		log.Errorw("failed to record post status", "error", err)
	}
	if err != nil {
		log.Warnw("extraction failed", "error", err)
		s.postFailed(target, sub, post.URL, err)
		return
	}
	s.count(func(c *database.Counters) {
		c.PostsExtracted++
	})
}

func (s *Session) postFailed(target *database.Target, sub *downloader.Submission, postURL string, err error) {
	s.count(func(c *database.Counters) {
		c.PostsFailed++
	})
	s.fail(Failure{
		Stage:   "post",
		Target:  target.String(),
		Title:   sub.Title,
		URL:     postURL,
		Message: downloader.Describe(err),
	})
	s.events.Send(PostFailed{Title: sub.Title, Author: sub.Author, Target: target.String(), URL: postURL, Err: err})
}

func (s *Session) newContent(naming *downloader.Naming, post *database.Post, target *database.Target, sub *downloader.Submission, item downloader.Item) (*database.Content, error) {
	title := item.Title
	if title == "" {
		title = sub.Title
	}
	args := downloader.NewNamingArgs(target.Name, target.Kind, sub, title)
	dir, err := naming.Directory(s.config.DownloadDir, &args)
	if err != nil {
		return nil, err
	}
	name, err := naming.FileName(&args, item.Suffix)
	if err != nil {
		return nil, err
	}
	return &database.Content{
		PostID:    post.ID,
		TargetID:  target.ID,
		RunID:     post.RunID,
		URL:       item.URL,
		Directory: dir,
		Title:     name,
		Extension: item.Extension,
		// The parts of a merge set are deleted after muxing, so they never take part in dedup
		HashDedup:   target.HashDedup && item.MergeID == "",
		MergeID:     item.MergeID,
		MergeRole:   item.MergeRole,
		PostCreated: sub.Created,
	}, nil
}

// extractItems never panics: a strategy that does is reported as an unknown error for this submission.
func (s *Session) extractItems(target *database.Target, sub *downloader.Submission) (items []downloader.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = downloader.NewError(downloader.KindUnknown, "extract", sub.URL, fmt.Errorf("strategy panicked: %v", r))
		}
	}()
	if sub.IsSelf {
		if !target.ExtractSelfPostLinks {
			return nil, nil
		}
		return s.extractSelfPost(sub)
	}
	return s.extractURL(sub)
}

func (s *Session) extractURL(sub *downloader.Submission) ([]downloader.Item, error) {
	match, err := s.config.Registry.Resolve(sub.URL)
	if err != nil {
		return nil, err
	}
	items, err := match.Strategy.Extract(s.work, sub)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", match.Name, err)
	}
	return items, nil
}

// extractSelfPost extracts every link in the body of a self post, collecting the failures rather than stopping at
// the first.
func (s *Session) extractSelfPost(sub *downloader.Submission) ([]downloader.Item, error) {
	var items []downloader.Item
	var result *multierror.Error
	for i, link := range SelfPostLinks(sub.SelfTextHTML) {
		linked := sub.WithLink(link, fmt.Sprintf("%s (link %d)", sub.Title, i+1))
		found, err := s.extractURL(linked)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%v: %w", link, err))
			continue
		}
		items = append(items, found...)
	}
	return items, result.ErrorOrNil()
}

// SelfPostLinks returns the distinct http(s) links in a self post body, in document order.
func SelfPostLinks(html string) []string {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	seen := generic.NewSet[string]()
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		u, err := url.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return
		}
		if seen.Add(href) > 0 {
			links = append(links, href)
		}
	})
	return links
}
