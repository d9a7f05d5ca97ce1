package session

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/database"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/download"
)

const cancelledMessage = "cancelled"

// runDownloads is the download stage dispatcher. Content ids are handed to a fixed pool of workers; sentinels are
// handled in queue order by the dispatcher itself.
func (s *Session) runDownloads() {
	log := s.log.Named("download")
	work := make(chan database.RowID)
	var workers sync.WaitGroup
	for i := 0; i < s.config.DownloadWorkers; i++ {
		workers.Add(1)
		go func(worker int) {
			defer workers.Done()
			log := log.With("worker", worker)
			for id := range work {
				s.downloadContent(log, id)
				s.download.done()
			}
		}(i)
	}
	defer workers.Wait()
	defer close(work)

	for m := range s.download.queue.Receive() {
		switch m.kind {
		case itemMessage:
			work <- m.value
			continue
		case endMessage:
			s.download.done()
			return
		default:
			s.download.holding.Store(m.kind == holdMessage)
		}
		s.download.done()
	}
}

func (s *Session) downloadContent(log *zap.SugaredLogger, id database.RowID) {
	log = log.With("content_id", id)
	if s.stopping.IsSet() {
		log.Debug("stopping, leaving content pending")
		return
	}
	content, err := s.config.Database.GetContent(id)
	if err != nil {
		log.Errorw("failed to load content", "error", err)
		return
	}
	log = log.With("url", content.URL)

	result, err := s.config.Fetcher.Fetch(s.work, download.Request{
		URL:       content.URL,
		Dir:       content.Directory,
		Name:      content.Title,
		Extension: content.Extension,
		Hash:      content.HashDedup && s.config.DedupIndex != nil,
	})
	if err != nil {
		s.contentFailed(log, content, err)
		return
	}
	log = log.With("path", result.Path)

	if result.Hash != "" {
		owner, claimed, err := s.claimHash(log, result.Hash, content.ID)
		if err != nil {
			log.Warnw("failed to check content hash, keeping file", "error", err)
		} else if !claimed {
			s.contentDuplicate(log, content, result, owner)
			return
		}
	}

	if content.MergeID != "" {
		s.merges.SetPart(content.MergeID, content.MergeRole, result.Path, content.PostCreated)
	}
	if s.config.SetFileModifiedDate && !content.PostCreated.IsZero() {
		if err := os.Chtimes(result.Path, content.PostCreated, content.PostCreated); err != nil {
			log.Warnw("failed to set file modified time", "error", err)
		}
	}
	s.finishContent(log, id, database.ContentResult{
		Status: database.ContentDownloaded,
		Hash:   result.Hash,
		Path:   result.Path,
	})
	s.count(func(c *database.Counters) {
		c.ContentDownloaded++
	})
	log.Infow("saved", "size", result.Size, "multipart", result.MultiPart)
	s.events.Send(ContentSaved{ContentID: id, URL: content.URL, Path: result.Path})
}

// claimHash takes ownership of hash for id. An owner whose file is no longer on disk gives up its claim, so content
// deleted by the user can be downloaded again.
func (s *Session) claimHash(log *zap.SugaredLogger, hash string, id database.RowID) (uint, bool, error) {
	owner, claimed, err := s.config.DedupIndex.Claim(hash, id)
	if err != nil || claimed || !s.ownerMissing(owner) {
		return owner, claimed, err
	}
	log.Infow("file of earlier copy is gone, taking over its hash", "owner", owner)
	if err := s.config.DedupIndex.Release(hash, owner); err != nil {
		return owner, false, err
	}
	return s.config.DedupIndex.Claim(hash, id)
}

func (s *Session) ownerMissing(id database.RowID) bool {
	owner, err := s.config.Database.GetContent(id)
	if errors.Is(err, database.ErrNotFound) {
		return true
	} else if err != nil || owner.Path == "" {
		// An owner still being saved has no path yet
		return false
	}
	_, err = os.Stat(owner.Path)
	return errors.Is(err, fs.ErrNotExist)
}

func (s *Session) contentDuplicate(log *zap.SugaredLogger, content *database.Content, result *download.Result, owner uint) {
	path, removed := result.Path, false
	if s.config.RemoveDuplicates {
		if err := os.Remove(result.Path); err != nil {
			log.Warnw("failed to remove duplicate", "error", err)
		} else {
			path, removed = "", true
		}
	}
	s.finishContent(log, content.ID, database.ContentResult{
		Status: database.ContentDuplicate,
		Hash:   result.Hash,
		Path:   path,
	})
	s.count(func(c *database.Counters) {
		c.ContentDuplicate++
	})
	log.Infow("duplicate content", "owner", owner, "removed", removed)
	s.events.Send(ContentDuplicate{ContentID: content.ID, URL: content.URL, Path: result.Path, OwnerID: owner, Removed: removed})
}

func (s *Session) contentFailed(log *zap.SugaredLogger, content *database.Content, err error) {
	message := downloader.Describe(err)
	// In-flight transfers cut short by a hard stop fail in transport-specific ways
	if s.hardStop.IsSet() {
		message = cancelledMessage
	}
	log.Warnw("download failed", "error", err)
	s.finishContent(log, content.ID, database.ContentResult{Status: database.ContentError, Error: message})
	s.count(func(c *database.Counters) {
		c.ContentFailed++
	})

	var targetName string
	if target, err := s.config.Database.GetTargetByID(content.TargetID); err == nil {
		targetName = target.String()
	}
	s.fail(Failure{Stage: "content", Target: targetName, Title: content.Title, URL: content.URL, Message: message})
	s.events.Send(ContentFailed{ContentID: content.ID, Title: content.Title, URL: content.URL, Target: targetName, Err: err})
}

func (s *Session) finishContent(log *zap.SugaredLogger, id database.RowID, result database.ContentResult) {
	updated, err := s.config.Database.FinishContent(id, result)
	if err != nil {
		log.Errorw("failed to record content status", "status", result.Status, "error", err)
	} else if !updated {
		log.Warnw("content was no longer pending", "status", result.Status)
	}
}
