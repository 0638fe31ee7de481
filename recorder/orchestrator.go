package recorder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ytrecord/browser"
	"ytrecord/config"
	"ytrecord/files"
	"ytrecord/internal/retry"
	"ytrecord/internal/storage"
	"ytrecord/metadata"
	"ytrecord/obs"
	"ytrecord/playlist"
)

// ErrNothingToRecord indicates the filters left no URL to record.
var ErrNothingToRecord = errors.New("recorder: no videos to record")

// OBSClient is the OBS connection held for a whole run.
type OBSClient interface {
	OBS
	SceneInfo(ctx context.Context) (string, []string, error)
	AudioHints()
	Close() error
}

// BrowserClient is the browser connection held for a whole run.
type BrowserClient interface {
	Browser
	Close() error
}

// Orchestrator records every video of a URL file.
type Orchestrator struct {
	cfg     *config.Config
	journal storage.Journal
	logger  *slog.Logger
	stats   Stats

	connectOBS     func(context.Context) (OBSClient, error)
	connectBrowser func(context.Context) (BrowserClient, error)
	newSource      func(context.Context) (metadata.Source, error)
	files          FileStore
	sleep          func(context.Context, time.Duration) error
}

// NewOrchestrator wires the production OBS, browser, file and metadata
// clients from cfg. journal may be nil to run without history.
func NewOrchestrator(cfg *config.Config, journal storage.Journal, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:     cfg,
		journal: journal,
		logger:  logger,
		sleep:   retry.Sleep,
	}

	fopts := files.DefaultOptions()
	fopts.TestMode = cfg.TestMode
	o.files = files.NewManager(fopts, logger)

	o.connectOBS = func(ctx context.Context) (OBSClient, error) {
		opts := obs.DefaultOptions()
		opts.Address = cfg.OBSAddress()
		opts.Password = cfg.OBSPassword
		opts.Timeout = cfg.OBSTimeout
		opts.Retry = RetryConfig(cfg)
		r, err := obs.Connect(ctx, opts, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	o.connectBrowser = func(ctx context.Context) (BrowserClient, error) {
		s, err := browser.Connect(ctx, BrowserOptions(cfg), logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	o.newSource = func(ctx context.Context) (metadata.Source, error) {
		if cfg.YouTubeAPIKey == "" {
			return nil, nil
		}
		c, err := metadata.NewAPIClient(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			return nil, err
		}
		c.RetryConfig = RetryConfig(cfg)
		return c, nil
	}
	return o
}

// RetryConfig maps the retry settings of cfg.
func RetryConfig(cfg *config.Config) retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxRetries = cfg.MaxRetries
	rc.InitialBackoff = cfg.InitialBackoff
	rc.MaxBackoff = cfg.MaxBackoff
	rc.Multiplier = cfg.BackoffMultiplier
	return rc
}

// BrowserOptions maps the browser settings of cfg.
func BrowserOptions(cfg *config.Config) browser.Options {
	opts := browser.DefaultOptions()
	opts.Name = cfg.Browser
	opts.ExecPath = cfg.BrowserPath
	opts.UserDataDir = cfg.BrowserProfileDir
	opts.Host = cfg.DebugHost
	opts.Port = cfg.DebugPort
	opts.Launch = cfg.LaunchBrowser
	opts.CloseOnExit = cfg.CloseBrowserOnExit
	opts.PageLoadTimeout = cfg.PageLoadTimeout
	opts.PostLoadWait = cfg.PostLoadWait
	opts.TitleTimeout = cfg.TitleTimeout
	opts.PopupSweepInterval = cfg.PopupSweepInterval
	return opts
}

// ProcessorOptions maps the sequence timings of cfg, applying test margins in test mode.
func ProcessorOptions(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.StartMargin, opts.EndMargin = cfg.Margins()
	opts.TestMode = cfg.TestMode
	opts.TestMaxDuration = cfg.TestMaxDuration
	opts.DefaultDuration = cfg.DefaultDuration
	opts.DurationTimeout = cfg.DurationTimeout
	opts.MonitorInterval = cfg.MonitorInterval
	return opts
}

// Stats returns the statistics of the last Run.
func (o *Orchestrator) Stats() Stats { return o.stats }

// Plan parses the URL file and applies, in order, the start module, the test
// limits, the start video and the resume filter.
func (o *Orchestrator) Plan(ctx context.Context) ([]playlist.Module, error) {
	cfg := o.cfg
	mods, err := playlist.ParseFile(cfg.URLFile, o.logger)
	if err != nil {
		return nil, err
	}

	mods = playlist.FromModule(mods, cfg.StartModule, o.logger)
	if cfg.TestMode {
		mods = playlist.LimitForTest(mods, cfg.TestMaxModules, cfg.TestMaxVideosPerModule, o.logger)
	}
	mods = playlist.StartAt(mods, cfg.StartVideo, cfg.StartVideoByModule, o.logger)
	if cfg.Resume && o.journal != nil {
		mods = playlist.SkipRecorded(mods, func(module, url string) bool {
			return o.journal.IsRecorded(ctx, module, url)
		}, o.logger)
	}
	return mods, nil
}

// Run records the planned videos one after another. A failing video is
// logged and skipped. The summary is always logged, OBS is always left
// stopped and both connections are closed. Cancelling ctx stops the run after
// the current video's cleanup and returns ctx's error.
func (o *Orchestrator) Run(ctx context.Context) error {
	cfg := o.cfg
	o.stats = Stats{}

	if cfg.TestMode {
		o.logger.Info("TEST MODE",
			"max_modules", cfg.TestMaxModules,
			"max_videos_per_module", cfg.TestMaxVideosPerModule,
			"max_duration", cfg.TestMaxDuration)
	}

	var processed []string
	defer func() { o.stats.Summarize(processed).Log(o.logger) }()

	mods, err := o.Plan(ctx)
	if err != nil {
		return err
	}
	total := playlist.CountURLs(mods)
	if total == 0 {
		return ErrNothingToRecord
	}
	o.logger.Info("videos to record", "modules", len(mods), "videos", total)

	dirs, err := playlist.CreateFolders(cfg.OutputDir, mods, o.logger)
	if err != nil {
		return err
	}

	studio, err := o.connectOBS(ctx)
	if err != nil {
		return err
	}
	defer func() {
		studio.EnsureStopped(context.WithoutCancel(ctx))
		if err := studio.Close(); err != nil {
			o.logger.Warn("OBS disconnect failed", "error", err)
		}
	}()
	o.checkOBS(ctx, studio)

	br, err := o.connectBrowser(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := br.Close(); err != nil {
			o.logger.Warn("browser close failed", "error", err)
		}
	}()

	source, err := o.newSource(ctx)
	if err != nil {
		o.logger.Warn("YouTube API unavailable, page metadata only", "error", err)
		source = nil
	}

	proc := NewProcessor(br, studio, o.files, source, ProcessorOptions(cfg), &o.stats, o.logger)
	proc.sleep = o.sleep

	runID := o.startRun(ctx)
	var recorded, failed int
	defer func() { o.finishRun(ctx, runID, recorded, failed) }()

	index := 0
modules:
	for _, m := range mods {
		dir, ok := dirs[m.Name]
		if !ok {
			continue
		}
		processed = append(processed, dir)
		o.logger.Info("module", "name", m.Name, "videos", len(m.Entries), "dir", dir)

		for _, e := range m.Entries {
			if ctx.Err() != nil {
				break modules
			}
			index++
			res, err := proc.Process(ctx, Job{
				Module: m.Name,
				Dir:    dir,
				URL:    e.URL,
				Number: e.Number,
				Index:  index,
				Total:  total,
			})
			switch {
			case ctx.Err() != nil:
				break modules
			case err != nil:
				failed++
				o.logger.Error("video failed, continuing", "module", m.Name, "video", e.Number, "error", err)
			default:
				recorded++
				o.journalRecording(ctx, runID, res)
			}

			if index < total {
				if o.sleep(ctx, cfg.BetweenVideosPause) != nil {
					break modules
				}
			}
		}
	}

	o.logger.Info("run finished", "recorded", recorded, "failed", failed, "planned", total)
	return ctx.Err()
}

func (o *Orchestrator) checkOBS(ctx context.Context, r OBSClient) {
	current, scenes, err := r.SceneInfo(ctx)
	if err != nil {
		o.logger.Warn("could not read OBS scenes", "error", err)
	} else {
		o.logger.Info("OBS scene setup", "current", current, "scenes", scenes)
	}
	r.AudioHints()
	o.logger.Info("setup: the OBS scene should capture the browser window or the display it is on")
	o.logger.Info("setup: keep the browser on that display and do not use it during the run")
}

func (o *Orchestrator) startRun(ctx context.Context) string {
	if o.journal == nil {
		return ""
	}
	run := &storage.Run{URLFile: o.cfg.URLFile, TestMode: o.cfg.TestMode}
	if err := o.journal.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Warn("journal: cannot record run", "error", err)
		return ""
	}
	o.logger.Debug("journal: run started", "run_id", run.ID)
	return run.ID
}

func (o *Orchestrator) journalRecording(ctx context.Context, runID string, res *Result) {
	if o.journal == nil || runID == "" {
		return
	}
	rec := &storage.Recording{
		RunID:           runID,
		Module:          res.Module,
		URL:             res.URL,
		Number:          res.Number,
		Title:           res.Title,
		Path:            res.Path,
		Bytes:           res.Bytes,
		DurationSeconds: res.Duration.Seconds(),
	}
	if err := o.journal.AddRecording(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("journal: cannot record video", "error", err)
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, runID string, recorded, failed int) {
	if o.journal == nil || runID == "" {
		return
	}
	status := storage.RunStatusCompleted
	switch {
	case ctx.Err() != nil:
		status = storage.RunStatusCancelled
	case recorded == 0 && failed > 0:
		status = storage.RunStatusFailed
	}
	if err := o.journal.FinishRun(context.WithoutCancel(ctx), runID, status, recorded, failed); err != nil {
		o.logger.Warn("journal: cannot finish run", "error", err)
	}
}
