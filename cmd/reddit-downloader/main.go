package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"text/tabwriter"

	"github.com/gin-gonic/gin"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/async"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/database"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/download"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/feed"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/api"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/boltdb"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/config"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/logger"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/merge"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/internal/session"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/provider/redditvideo"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/providers"
)

type app struct {
	cfg *config.Config
	log *zap.SugaredLogger
	db  *database.Database
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{}
	cliApp := &cli.App{
		Name:  "reddit-downloader",
		Usage: "download the media posted by reddit users, subreddits and feeds",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
				EnvVars: []string{"REDDIT_DOWNLOADER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "download-dir",
				Usage:   "save downloads under `DIR`",
				EnvVars: []string{"REDDIT_DOWNLOADER_DIR"},
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "number of concurrent downloads",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "minimum log `LEVEL`",
				EnvVars: []string{"REDDIT_DOWNLOADER_LOG_LEVEL"},
			},
		},
		Before: a.setup,
		After:  a.teardown,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "download new content from every active target",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "serve the control API on `ADDR` while running",
					},
				},
				Action: func(c *cli.Context) error {
					targets, err := a.db.ListTargets(true)
					if err != nil {
						return err
					}
					return a.runSession(ctx, c, targets)
				},
			},
			{
				Name:      "download",
				Usage:     "download new content from the named targets, adding any that are unknown",
				ArgsUsage: "NAME...",
				Flags: []cli.Flag{
					kindFlag(),
					&cli.StringFlag{
						Name:  "listen",
						Usage: "serve the control API on `ADDR` while running",
					},
				},
				Action: func(c *cli.Context) error {
					kind, err := parseKind(c.String("kind"))
					if err != nil {
						return err
					}
					var targets []database.Target
					for _, name := range c.Args().Slice() {
						target, created, err := a.db.GetOrCreateTarget(name, kind, a.cfg.Defaults)
						if err != nil {
							return err
						}
						if created {
							a.log.Infof("Added target %v", target)
						}
						targets = append(targets, *target)
					}
					return a.runSession(ctx, c, targets)
				},
			},
			{
				Name:  "target",
				Usage: "manage targets",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "add a target",
						ArgsUsage: "NAME",
						Flags: []cli.Flag{
							kindFlag(),
							&cli.StringFlag{Name: "feed-url", Usage: "feed `URL` of a feed target"},
							&cli.StringFlag{Name: "sort", Usage: "listing sort method"},
							&cli.IntFlag{Name: "limit", Usage: "maximum posts per run"},
						},
						Action: a.addTarget,
					},
					{
						Name:   "list",
						Usage:  "list targets",
						Flags:  []cli.Flag{&cli.BoolFlag{Name: "active", Usage: "only list active targets"}},
						Action: a.listTargets,
					},
					{
						Name:      "enable",
						Usage:     "re-activate a target and enable its downloads",
						ArgsUsage: "NAME",
						Flags:     []cli.Flag{kindFlag()},
						Action:    a.enableTarget(true),
					},
					{
						Name:      "disable",
						Usage:     "disable downloads from a target",
						ArgsUsage: "NAME",
						Flags:     []cli.Flag{kindFlag()},
						Action:    a.enableTarget(false),
					},
				},
			},
			{
				Name:  "index",
				Usage: "inspect the duplicate detection index",
				Subcommands: []*cli.Command{
					{
						Name:   "stats",
						Usage:  "count the content hashes recorded",
						Action: a.indexStats,
					},
					{
						Name:      "lookup",
						Usage:     "show which download owns a content hash",
						ArgsUsage: "HASH",
						Action:    a.indexLookup,
					},
				},
			},
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return cliApp.Run(os.Args) })

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		stop()
		err = <-result
	}
	if err != nil {
		log.Fatal(err)
	}
}

func kindFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "kind",
		Value: string(downloader.TargetKindUser),
		Usage: "target `KIND`: user, subreddit or feed",
	}
}

func parseKind(s string) (downloader.TargetKind, error) {
	switch kind := downloader.TargetKind(s); kind {
	case downloader.TargetKindUser, downloader.TargetKindSubreddit, downloader.TargetKindFeed:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown target kind %q", s)
	}
}

func (a *app) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("download-dir") {
		cfg.DownloadDir = c.String("download-dir")
	}
	if c.IsSet("workers") {
		cfg.Pipeline.DownloadWorkers = c.Int("workers")
	}
	if c.IsSet("log-level") {
		cfg.Logger.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	zapLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}
	zap.ReplaceGlobals(zapLogger)
	zap.RedirectStdLog(zapLogger)
	a.log = zap.S().Named("main")

	db, err := database.NewDatabase(cfg.Database.Driver, cfg.Database.DSN, zapLogger)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return err
	}
	a.db = db
	return nil
}

func (a *app) teardown(c *cli.Context) error {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return err
		}
	}
	_ = zap.L().Sync()
	return nil
}

func (a *app) runSession(ctx context.Context, c *cli.Context, targets []database.Target) error {
	cfg := a.cfg
	index, err := boltdb.New(cfg.DedupIndex)
	if err != nil {
		return err
	}
	defer index.Close()

	client := download.NewHTTPClient(cfg.Pipeline.RequestTimeout, cfg.Pipeline.UserAgent)
	reddit := feed.NewReddit(cfg.Reddit.BaseURL, client)
	ffmpeg := merge.NewFFmpeg(cfg.FFmpegPath)
	if !ffmpeg.Available() {
		a.log.Warnf("%v not found, reddit videos will be left as separate video and audio files", cfg.FFmpegPath)
	}

	bar := progressbar.DefaultBytes(-1, "downloading")
	var ses *session.Session
	fetcher := download.NewFetcher(download.Config{
		Transport: client,
		MultiPart: download.MultiPartConfig{
			Enabled:   cfg.Pipeline.MultiPart.Enabled,
			Threshold: cfg.Pipeline.MultiPart.Threshold,
			Parts:     cfg.Pipeline.MultiPart.Parts,
		},
		OnBytes: func(n int) {
			_ = bar.Add(n)
			ses.OnBytes(n)
		},
	})

	sc := session.DefaultConfig
	sc.DownloadDir = cfg.DownloadDir
	sc.Database = a.db
	sc.DedupIndex = index
	sc.Registry = providers.NewRegistry(providers.Config{
		ImgurClientID: cfg.Imgur.ClientID,
		ImgurBaseURL:  cfg.Imgur.BaseURL,
		HTTPClient:    client,
	})
	sc.Feeds = feed.Mux{
		downloader.TargetKindUser:      reddit,
		downloader.TargetKindSubreddit: reddit,
		downloader.TargetKindFeed:      feed.NewRSS(client),
	}
	sc.Fetcher = fetcher
	sc.Reassembler = merge.NewReassembler(ffmpeg, redditvideo.VideoMarker, cfg.Pipeline.SetFileModifiedDate)
	sc.DownloadWorkers = cfg.Pipeline.DownloadWorkers
	sc.QueueSize = cfg.Pipeline.QueueSize
	sc.RemoveDuplicates = cfg.Pipeline.RemoveDuplicates
	sc.SetFileModifiedDate = cfg.Pipeline.SetFileModifiedDate
	sc.ConnectionRetries = cfg.Pipeline.ConnectionRetries
	sc.RetryBackoff = cfg.Pipeline.RetryBackoff
	sc.HoldPollInterval = cfg.Pipeline.HoldPollInterval
	sc.RenameInvalidTargetFolder = cfg.Pipeline.RenameInvalidTargetFolder

	ses, err = session.New(sc, context.Background())
	if err != nil {
		return err
	}
	defer ses.Close()

	events, err := ses.Subscribe()
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range events.Receive() {
			switch event.(type) {
			case session.StateChanged:
				a.log.Debug(event.Message())
			default:
				if session.IsFailure(event) {
					a.log.Warn(event.Message())
				} else {
					a.log.Info(event.Message())
				}
			}
		}
	}()

	listen := c.String("listen")
	if listen == "" {
		listen = cfg.API.Listen
	}
	apiCtx, apiCancel := context.WithCancel(context.Background())
	defer apiCancel()
	if listen != "" {
		gin.SetMode(gin.ReleaseMode)
		server := api.NewServer(api.NewHandler(ses, a.db))
		served := async.Run(func() error { return api.Serve(apiCtx, listen, server) })
		defer func() {
			apiCancel()
			if err := <-served; err != nil {
				a.log.Warnf("control API: %v", err)
			}
		}()
		a.log.Infof("Control API listening on %v", listen)
	}

	go func() {
		select {
		case <-ctx.Done():
			a.log.Info("Stopping, waiting for in-flight downloads...")
			ses.Stop(false)
		case <-ses.Done():
		}
	}()

	a.log.Infof("Downloading from %d target(s) into %v", len(targets), cfg.DownloadDir)
	finished := async.RunResult(func() (*session.Summary, error) {
		return ses.Run(context.Background(), targets)
	})
	summary, err := (<-finished).Parts()
	_ = bar.Finish()
	ses.Close()
	wg.Wait()
	if err != nil {
		return err
	}
	a.printSummary(c, summary)
	return nil
}

func (a *app) printSummary(c *cli.Context, summary *session.Summary) {
	w := c.App.Writer
	counters := summary.Run.Counters
	fmt.Fprintf(w, "\nDownloaded %d, duplicate %d, failed %d, merged %d (%d post(s) extracted, %d failed)\n",
		counters.ContentDownloaded, counters.ContentDuplicate, counters.ContentFailed, counters.Merged,
		counters.PostsExtracted, counters.PostsFailed)
	if summary.Run.Aborted {
		fmt.Fprintln(w, "Run aborted after repeated connection errors")
	}
	if summary.Merge != nil {
		for _, s := range summary.Merge.Incomplete {
			fmt.Fprintf(w, "Unmerged: %v %v\n", s.VideoPath, s.AudioPath)
		}
		for _, f := range summary.Merge.Failed {
			fmt.Fprintf(w, "Merge failed: %v: %v\n", f.Set.VideoPath, f.Err)
		}
	}
	if len(summary.Failures) > 0 {
		fmt.Fprintf(w, "\n%d failure(s):\n", len(summary.Failures))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STAGE\tTARGET\tTITLE\tURL\tERROR")
		for _, f := range summary.Failures {
			fmt.Fprintf(tw, "%v\t%v\t%v\t%v\t%v\n", f.Stage, f.Target, f.Title, f.URL, f.Message)
		}
		_ = tw.Flush()
	}
}

func (a *app) addTarget(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one target name")
	}
	kind, err := parseKind(c.String("kind"))
	if err != nil {
		return err
	}
	settings := a.cfg.Defaults
	if c.IsSet("sort") {
		settings.SortMethod = c.String("sort")
	}
	if c.IsSet("limit") {
		settings.PostLimit = c.Int("limit")
	}
	target := &database.Target{
		Name:            c.Args().First(),
		Kind:            kind,
		FeedURL:         c.String("feed-url"),
		Settings:        settings,
		Active:          true,
		DownloadEnabled: true,
	}
	if kind == downloader.TargetKindFeed && target.FeedURL == "" {
		return fmt.Errorf("feed targets need --feed-url")
	}
	if err := a.db.CreateTarget(target); err != nil {
		return err
	}
	a.log.Infof("Added target %v", target)
	return nil
}

func (a *app) listTargets(c *cli.Context) error {
	targets, err := a.db.ListTargets(c.Bool("active"))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tNAME\tACTIVE\tDOWNLOAD\tSORT\tLIMIT")
	for _, t := range targets {
		fmt.Fprintf(tw, "%d\t%v\t%v\t%v\t%v\t%v\t%d\n", t.ID, t.Kind, t.Name, t.Active, t.DownloadEnabled, t.SortMethod, t.PostLimit)
	}
	return tw.Flush()
}

func (a *app) enableTarget(enabled bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("expected one target name")
		}
		kind, err := parseKind(c.String("kind"))
		if err != nil {
			return err
		}
		target, err := a.db.GetTargetByName(c.Args().First(), kind)
		if err != nil {
			return err
		}
		if enabled {
			if err := a.db.SetTargetActive(target.ID, true); err != nil {
				return err
			}
		}
		if err := a.db.SetTargetDownloadEnabled(target.ID, enabled); err != nil {
			return err
		}
		a.log.Infof("Target %v download enabled: %v", target, enabled)
		return nil
	}
}

func (a *app) indexStats(c *cli.Context) error {
	index, err := boltdb.New(a.cfg.DedupIndex)
	if err != nil {
		return err
	}
	defer index.Close()
	count, err := index.Count()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d content hash(es) in %v\n", count, a.cfg.DedupIndex)
	return nil
}

func (a *app) indexLookup(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one content hash")
	}
	index, err := boltdb.New(a.cfg.DedupIndex)
	if err != nil {
		return err
	}
	defer index.Close()
	owner, ok, err := index.Lookup(c.Args().First())
	if err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("hash %v is not recorded", c.Args().First())
	}
	content, err := a.db.GetContent(owner)
	if err != nil {
		return fmt.Errorf("hash is owned by content %d: %w", owner, err)
	}
	fmt.Fprintf(c.App.Writer, "content %d (%v): %v\n", content.ID, content.Status, content.Path)
	return nil
}
