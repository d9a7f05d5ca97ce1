package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/database"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/download"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/feed"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/lpc"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/merge"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/pubsub"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/sync_"
)

var (
	ErrAlreadyRun = errors.New("session has already been run")
	ErrNotRunning = errors.New("session is not running")
)

// Fetcher downloads one item to disk. *download.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req download.Request) (*download.Result, error)
}

type Config struct {
	DownloadDir string
	Database    Database
	// DedupIndex is required for targets with hash-based duplicate detection; without it they skip the check.
	DedupIndex DedupIndex
	Registry   *downloader.Registry
	Feeds      feed.Source
	Fetcher    Fetcher
	// Reassembler joins split video and audio parts once downloads finish; nil leaves them unmerged.
	Reassembler *merge.Reassembler

	DownloadWorkers int
	QueueSize       int
	// RemoveDuplicates deletes files found to duplicate earlier downloads.
	RemoveDuplicates    bool
	SetFileModifiedDate bool
	// ConnectionRetries is how many times enumeration of a target is retried before the run is aborted.
	ConnectionRetries         int
	RetryBackoff              time.Duration
	HoldPollInterval          time.Duration
	RenameInvalidTargetFolder bool
}

var DefaultConfig = Config{
	DownloadDir:       ".",
	DownloadWorkers:   4,
	QueueSize:         64,
	ConnectionRetries: 3,
	RetryBackoff:      2 * time.Second,
	HoldPollInterval:  250 * time.Millisecond,
}

type State string

const (
	StateIdle        State = "idle"
	StateEnumerating State = "enumerating"
	StateHolding     State = "holding"
	StateResumed     State = "resumed"
	StateDraining    State = "draining"
	StateDone        State = "done"
)

type Failure struct {
	// Stage is "target", "post" or "content".
	Stage   string
	Target  string
	Title   string
	URL     string
	Message string
}

type Summary struct {
	Run      database.Run
	Failures []Failure
	Merge    *merge.Report
}

type Status struct {
	State             State             `json:"state"`
	RunID             database.RowID    `json:"run_id"`
	ExtractionPending int64             `json:"extraction_pending"`
	DownloadPending   int64             `json:"download_pending"`
	BytesDownloaded   int64             `json:"bytes_downloaded"`
	Counters          database.Counters `json:"counters"`
	Failures          int               `json:"failures"`
	Stopping          bool              `json:"stopping"`
}

type Session struct {
	config    Config
	ctx       context.Context
	ctxCancel context.CancelFunc
	// work is cancelled by a hard stop, aborting in-flight requests and writes.
	work       context.Context
	workCancel context.CancelFunc
	log        *zap.SugaredLogger

	extract  *stage[submissionJob]
	download *stage[database.RowID]
	inject   chan *lpc.Command[database.RowID, int]
	merges   *merge.Registry
	events   pubsub.Publisher[Event]

	state    *sync_.RWMutexed[State]
	run      *sync_.Mutexed[database.Run]
	failures *sync_.Mutexed[[]Failure]
	bytes    *sync_.Mutexed[int64]
	started  sync_.Event
	stopping sync_.Event
	hardStop sync_.Event
	finished sync_.Event
}

func New(config Config, ctx context.Context) (*Session, error) {
	if config.Database == nil || config.Registry == nil || config.Feeds == nil || config.Fetcher == nil {
		return nil, errors.New("session requires a database, registry, feed source and fetcher")
	}
	if config.DownloadWorkers < 1 {
		config.DownloadWorkers = DefaultConfig.DownloadWorkers
	}
	if config.QueueSize < 1 {
		config.QueueSize = DefaultConfig.QueueSize
	}
	if config.HoldPollInterval <= 0 {
		config.HoldPollInterval = DefaultConfig.HoldPollInterval
	}
	if config.DownloadDir == "" {
		config.DownloadDir = DefaultConfig.DownloadDir
	}
	ctx, cancel := context.WithCancel(ctx)
	work, workCancel := context.WithCancel(ctx)
	s := &Session{
		config:     config,
		ctx:        ctx,
		ctxCancel:  cancel,
		work:       work,
		workCancel: workCancel,
		log:        zap.S().Named("session"),

		extract:  newStage[submissionJob](config.QueueSize),
		download: newStage[database.RowID](config.QueueSize),
		inject:   make(chan *lpc.Command[database.RowID, int]),
		merges:   merge.NewRegistry(),
		events:   pubsub.NewPublisher[Event](),

		state:    sync_.NewRWMutexed(StateIdle),
		run:      sync_.NewMutexed(database.Run{}),
		failures: sync_.NewMutexed[[]Failure](nil),
		bytes:    sync_.NewMutexed[int64](0),
	}
	return s, nil
}

// Subscribe returns a receiver of all session events. Subscribers must keep up, or the pipeline stalls.
func (s *Session) Subscribe() (pubsub.ReceiverCloser[Event], error) {
	return s.events.Subscribe()
}

// SubscribeFiltered is like Subscribe, but only receives events accepted by f.
func (s *Session) SubscribeFiltered(f func(Event) bool) (pubsub.ReceiverCloser[Event], error) {
	ch := pubsub.NewChannel[Event](pubsub.DefaultSubscriberBufSize)
	if err := s.events.AddSubscriber(pubsub.NewFilteredSender[Event](ch, f), true); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *Session) Status() Status {
	run := s.run.Get()
	return Status{
		State:             s.state.Get(),
		RunID:             run.ID,
		ExtractionPending: s.extract.pending.Load(),
		DownloadPending:   s.download.pending.Load(),
		BytesDownloaded:   s.bytes.Get(),
		Counters:          run.Counters,
		Failures:          len(s.failures.Get()),
		Stopping:          s.stopping.IsSet(),
	}
}

// Stop asks the run to finish early. A soft stop lets in-flight downloads complete; a hard stop aborts them and
// deletes their partial files.
func (s *Session) Stop(hard bool) {
	if s.stopping.Set() {
		s.log.Infof("stop requested (hard: %v)", hard)
	}
	if hard && s.hardStop.Set() {
		s.workCancel()
	}
}

// Done is closed when the run has finished.
func (s *Session) Done() <-chan struct{} {
	return s.finished.Wait()
}

func (s *Session) Close() {
	s.Stop(true)
	if s.started.IsSet() {
		<-s.finished.Wait()
	}
	s.ctxCancel()
	s.events.Close()
}

// OnBytes is a download.Config callback feeding the session's byte counter.
func (s *Session) OnBytes(n int) {
	_ = s.bytes.Locked(func(total *int64) error {
		*total += int64(n)
		return nil
	})
}

func (s *Session) setState(state State) {
	old := s.state.Swap(state)
	if old != state {
		s.log.Debugf("state %v -> %v", old, state)
		s.events.Send(StateChanged{From: old, To: state})
	}
}

func (s *Session) count(f func(c *database.Counters)) {
	_ = s.run.Locked(func(run *database.Run) error {
		f(&run.Counters)
		return nil
	})
}

func (s *Session) fail(f Failure) {
	_ = s.failures.Locked(func(failures *[]Failure) error {
		*failures = append(*failures, f)
		return nil
	})
}
