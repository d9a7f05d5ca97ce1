package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/r3labs/diff/v3"
	"go.uber.org/zap"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/database"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/feed"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/filter"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/generic"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/merge"
)

const invalidFolderSuffix = " (invalid)"

type submissionJob struct {
	target database.Target
	sub    *downloader.Submission
}

// Run enumerates the targets, then holds the pipeline open for injected targets until both stages are idle or a stop
// is requested. Cancelling ctx is a hard stop. A Session can only be run once.
func (s *Session) Run(ctx context.Context, targets []database.Target) (*Summary, error) {
	if !s.started.Set() {
		return nil, ErrAlreadyRun
	}
	defer s.finished.Set()

	run, err := s.config.Database.CreateRun(s.config.DownloadWorkers)
	if err != nil {
		s.setState(StateDone)
		return nil, err
	}
	s.run.Swap(*run)
	log := s.log.With("run_id", run.ID)
	log.Infow("run started", "targets", len(targets), "download_workers", s.config.DownloadWorkers)

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop(true)
		case <-watchDone:
		}
	}()

	var stages sync.WaitGroup
	stages.Add(2)
	go func() {
		defer stages.Done()
		s.runExtraction()
	}()
	go func() {
		defer stages.Done()
		s.runDownloads()
	}()

	s.setState(StateEnumerating)
	aborted := false
	for i := range targets {
		if s.stopping.IsSet() {
			break
		}
		if _, err := s.enumerate(&targets[i]); err != nil {
			aborted = true
			break
		}
	}
	if !aborted && !s.stopping.IsSet() {
		s.extract.signal(holdMessage)
		aborted = s.hold()
	}

	s.setState(StateDraining)
	s.extract.signal(endMessage)
	stages.Wait()

	report := s.reassemble()
	s.merges.Clear()
	s.count(func(c *database.Counters) {
		c.Merged = len(report.Merged)
	})
	final := s.run.Get()
	final.Aborted = aborted
	if err := s.config.Database.FinishRun(&final); err != nil {
		log.Errorw("failed to record end of run", "error", err)
	}
	s.run.Swap(final)

	summary := &Summary{Run: final, Failures: s.failures.Get(), Merge: report}
	log.Infow("run finished",
		"aborted", aborted,
		"downloaded", final.ContentDownloaded,
		"duplicate", final.ContentDuplicate,
		"failed", final.ContentFailed,
		"merged", final.Merged,
	)
	s.events.Send(RunFinished{Summary: summary})
	s.setState(StateDone)
	s.events.Flush()
	return summary, nil
}

// hold services injected targets until the pipeline is idle or a stop is requested. The result is whether the run
// was aborted while enumerating an injected target.
func (s *Session) hold() bool {
	s.setState(StateHolding)
	ticker := time.NewTicker(s.config.HoldPollInterval)
	defer ticker.Stop()
	for {
		select {
		case cmd := <-s.inject:
			s.setState(StateResumed)
			s.extract.signal(releaseMessage)
			s.setState(StateEnumerating)
			queued, err := s.injectTarget(cmd.Arg())
			s.extract.signal(holdMessage)
			if err != nil {
				_ = cmd.RespondError(err)
			} else {
				_ = cmd.Respond(queued)
			}
			if errors.Is(err, downloader.ErrConnection) {
				return true
			}
			s.setState(StateHolding)
		case <-s.stopping.Wait():
			return false
		case <-s.ctx.Done():
			return false
		case <-ticker.C:
			// Downstream only becomes idle after upstream has forwarded everything, so check upstream first
			if s.extract.idle() && s.download.idle() {
				s.log.Debug("pipeline idle")
				return false
			}
		}
	}
}

func (s *Session) injectTarget(id database.RowID) (int, error) {
	target, err := s.config.Database.GetTargetByID(id)
	if err != nil {
		return 0, err
	}
	return s.enumerate(target)
}

// enumerate queues a target's acceptable submissions for extraction. It only returns an error when the run has to be
// aborted; any other failure is contained to the target.
func (s *Session) enumerate(target *database.Target) (int, error) {
	log := s.log.With("target", target.String())
	if !target.Active || !target.DownloadEnabled {
		log.Debugw("skipping target", "active", target.Active, "download_enabled", target.DownloadEnabled)
		return 0, nil
	}
	q := feed.Query{
		Name:      target.Name,
		Kind:      target.Kind,
		FeedURL:   target.FeedURL,
		Sort:      target.SortMethod,
		TopPeriod: target.TopPeriod,
		Limit:     target.PostLimit,
	}

	err := s.withRetry(log, "validate", func() error {
		return s.config.Feeds.Validate(s.work, q)
	})
	if err != nil {
		return 0, s.targetError(log, target, err)
	}

	criteria := target.Criteria()
	newest := target.DateLimit
	earlyStop := target.SortMethod == database.SortNew
	seen := generic.NewSet[string]()
	queued := 0
	err = s.withRetry(log, "enumerate", func() error {
		return s.config.Feeds.Submissions(s.work, q, func(sub *downloader.Submission) bool {
			if s.stopping.IsSet() {
				return false
			}
			key := sub.ID
			if key == "" {
				key = sub.URL
			}
			// Retries start from the top of the feed again
			if seen.Add(key) == 0 {
				return true
			}
			if ts := sub.Created.Unix(); ts > newest {
				newest = ts
			}
			result := filter.Check(sub, &criteria)
			if !result.Passed() {
				log.Debugw("submission filtered", "id", sub.ID, "reason", result.Reason)
				return !(earlyStop && result.DateFailed())
			}
			if !s.extract.push(submissionJob{target: *target, sub: sub}) {
				return false
			}
			queued++
			s.count(func(c *database.Counters) {
				c.SubmissionsQueued++
			})
			return true
		})
	})
	if err != nil {
		return queued, s.targetError(log, target, err)
	}

	// A partial enumeration must not move the date limit past submissions it never saw
	if !s.stopping.IsSet() && newest > target.DateLimit {
		moved, err := s.config.Database.AdvanceDateLimit(target.ID, newest)
		if err != nil {
			log.Errorw("failed to advance date limit", "error", err)
		} else if moved {
			old := *target
			target.DateLimit = newest
			if changes, err := diff.Diff(old, *target); err == nil {
				for _, c := range changes {
					log.Debugw("target updated", "field", c.Path, "from", c.From, "to", c.To)
				}
			}
		}
	}

	log.Infow("target enumerated", "queued", queued)
	s.events.Send(TargetEnumerated{Target: target.String(), Queued: queued})
	return queued, nil
}

// targetError contains a failed enumeration to its target, except for repeated connection errors which abort the run.
func (s *Session) targetError(log *zap.SugaredLogger, target *database.Target, err error) error {
	switch downloader.KindOf(err) {
	case downloader.KindValidation:
		s.invalidate(log, target, err)
		return nil
	case downloader.KindConnection:
		log.Errorw("connection failed, aborting run", "error", err)
		s.events.Send(TargetFailed{Target: target.String(), Err: err})
		s.fail(Failure{Stage: "target", Target: target.String(), Message: downloader.Describe(err)})
		s.stopping.Set()
		return fmt.Errorf("enumerating %v: %w", target, err)
	default:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		log.Errorw("failed to enumerate target", "error", err)
		s.events.Send(TargetFailed{Target: target.String(), Err: err})
		s.fail(Failure{Stage: "target", Target: target.String(), Message: downloader.Describe(err)})
		return nil
	}
}

func (s *Session) invalidate(log *zap.SugaredLogger, target *database.Target, err error) {
	log.Warnw("target not valid, deactivating", "error", err)
	if err := s.config.Database.SetTargetActive(target.ID, false); err != nil {
		log.Errorw("failed to deactivate target", "error", err)
	}
	target.Active = false
	if s.config.RenameInvalidTargetFolder {
		dir := filepath.Join(s.config.DownloadDir, downloader.SanitizeFileName(target.Name))
		if _, statErr := os.Stat(dir); statErr == nil {
			if err := os.Rename(dir, dir+invalidFolderSuffix); err != nil {
				log.Warnw("failed to rename folder of invalid target", "dir", dir, "error", err)
			}
		}
	}
	s.events.Send(TargetInvalid{Target: target.String(), Err: err})
	s.fail(Failure{Stage: "target", Target: target.String(), Message: downloader.Describe(err)})
}

// withRetry runs f, retrying connection errors with a linearly growing backoff.
func (s *Session) withRetry(log *zap.SugaredLogger, op string, f func() error) error {
	for attempt := 1; ; attempt++ {
		err := f()
		if !downloader.IsKind(err, downloader.KindConnection) || attempt > s.config.ConnectionRetries {
			return err
		}
		wait := s.config.RetryBackoff * time.Duration(attempt)
		log.Warnw("connection error, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-s.stopping.Wait():
			return err
		case <-s.work.Done():
			return err
		}
	}
}

func (s *Session) reassemble() *merge.Report {
	if s.merges.Len() == 0 {
		return &merge.Report{}
	}
	if s.hardStop.IsSet() {
		s.log.Warnw("hard stop, leaving parts unmerged", "sets", s.merges.Len())
		return &merge.Report{Incomplete: append(s.merges.Incomplete(), s.merges.Complete()...), Skipped: true}
	}
	if s.config.Reassembler == nil {
		s.log.Warnw("no reassembler configured, leaving parts unmerged", "sets", s.merges.Len())
		return &merge.Report{Incomplete: append(s.merges.Incomplete(), s.merges.Complete()...), Skipped: true}
	}
	return s.config.Reassembler.Run(s.work, s.merges)
}
