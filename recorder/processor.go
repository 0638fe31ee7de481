// Package recorder runs the recording sequence: for every video it starts
// OBS, plays the video fullscreen in the browser for its duration, stops OBS
// and files the recording under the module folder.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"ytrecord/files"
	"ytrecord/internal/retry"
	"ytrecord/metadata"
)

// Browser is the tab control the sequence needs.
type Browser interface {
	LoadURL(ctx context.Context, url string) error
	Play(ctx context.Context) error
	EnterFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
	Title(ctx context.Context) (string, error)
	WaitForDuration(ctx context.Context, limit time.Duration) (time.Duration, error)
	Monitor(ctx context.Context, d, interval time.Duration) error
	CloseTab()
}

// OBS is the recording control the sequence needs.
type OBS interface {
	SetRecordDirectory(ctx context.Context, dir string) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) (string, error)
	EnsureStopped(ctx context.Context)
}

// FileStore moves a finished recording into its module folder.
type FileStore interface {
	Store(ctx context.Context, src, dir, title string, number int) (files.Stored, error)
}

// StepError records which step of the sequence failed.
type StepError struct {
	Step string
	URL  string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("recorder: %s (%s): %v", e.Step, e.URL, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Options holds the timings of the sequence.
type Options struct {
	StartMargin time.Duration
	EndMargin   time.Duration

	// TestMode caps every video at TestMaxDuration.
	TestMode        bool
	TestMaxDuration time.Duration

	// DefaultDuration is used when neither the page nor the API has a duration.
	DefaultDuration time.Duration
	// DurationTimeout bounds the wait for the player to report a duration.
	DurationTimeout time.Duration
	// FullscreenDelay is waited between play and fullscreen.
	FullscreenDelay time.Duration
	MonitorInterval time.Duration
	// CleanupPause is waited before the cleanup step.
	CleanupPause time.Duration
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		StartMargin:     4 * time.Second,
		EndMargin:       4 * time.Second,
		TestMaxDuration: 15 * time.Second,
		DefaultDuration: 60 * time.Second,
		DurationTimeout: 30 * time.Second,
		FullscreenDelay: time.Second,
		MonitorInterval: 2 * time.Second,
		CleanupPause:    2 * time.Second,
	}
}

// Job is one video to record.
type Job struct {
	Module string
	// Dir is the module folder, already created.
	Dir string
	URL string
	// Number is the video's position in its module in the URL file.
	Number int
	// Index and Total place the video in the whole run, for logging.
	Index int
	Total int
}

// Result describes a stored recording.
type Result struct {
	Module   string
	URL      string
	Number   int
	Title    string
	Path     string
	Bytes    int64
	Duration time.Duration
}

// Processor records one video at a time.
type Processor struct {
	browser Browser
	obs     OBS
	files   FileStore
	meta    metadata.Source
	opts    Options
	stats   *Stats
	logger  *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// NewProcessor wires a Processor. meta may be nil; stats may be nil.
func NewProcessor(b Browser, o OBS, f FileStore, meta metadata.Source, opts Options, stats *Stats, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Processor{
		browser: b,
		obs:     o,
		files:   f,
		meta:    meta,
		opts:    opts,
		stats:   stats,
		logger:  logger.With("component", "recorder"),
		sleep:   retry.Sleep,
	}
}

// Stats returns the accumulated statistics.
func (p *Processor) Stats() *Stats { return p.stats }

// Process runs the full sequence for job. Once the recording has started,
// every exit path stops it and closes the tab.
func (p *Processor) Process(ctx context.Context, job Job) (*Result, error) {
	log := p.logger.With("module", job.Module, "video", job.Number)
	log.Info("processing video", "index", job.Index, "total", job.Total, "url", job.URL)

	fail := func(step string, err error) (*Result, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &StepError{Step: step, URL: job.URL, Err: err}
	}

	log.Info("step 0: setting record directory", "dir", job.Dir)
	if err := p.obs.SetRecordDirectory(ctx, job.Dir); err != nil {
		return fail("set record directory", err)
	}

	log.Info("step 1: starting recording")
	if err := p.obs.Start(ctx); err != nil {
		p.obs.EnsureStopped(ctx)
		return fail("start recording", err)
	}
	defer p.cleanup(ctx, log)

	log.Info("step 2: start margin", "wait", p.opts.StartMargin)
	if err := p.sleep(ctx, p.opts.StartMargin); err != nil {
		return nil, err
	}

	log.Info("step 3: loading video")
	if err := p.browser.LoadURL(ctx, job.URL); err != nil {
		return fail("load", err)
	}

	log.Info("step 4: starting playback")
	if err := p.browser.Play(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("playback may not have started", "error", err)
	}

	log.Info("step 5: fullscreen")
	if err := p.sleep(ctx, p.opts.FullscreenDelay); err != nil {
		return nil, err
	}
	if err := p.browser.EnterFullscreen(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("could not enter fullscreen, continuing", "error", err)
	}

	log.Info("step 6: reading title and duration")
	md := &lazyInfo{source: p.meta, url: job.URL, logger: log}
	title, err := p.title(ctx, job, md, log)
	if err != nil {
		return nil, err
	}
	duration, err := p.duration(ctx, md, log)
	if err != nil {
		return nil, err
	}

	log.Info("step 7: monitoring playback", "duration", duration)
	if err := p.browser.Monitor(ctx, duration, p.opts.MonitorInterval); err != nil {
		return nil, err
	}

	log.Info("step 8: end margin", "wait", p.opts.EndMargin)
	if err := p.sleep(ctx, p.opts.EndMargin); err != nil {
		return nil, err
	}

	log.Info("step 9: stopping recording")
	path, err := p.obs.Stop(ctx)
	if err != nil {
		return fail("stop recording", err)
	}
	if path == "" || !inDir(job.Dir, path) {
		recent, err := files.FindRecent(job.Dir)
		switch {
		case err == nil:
			log.Warn("OBS path outside module folder, using the newest recording there", "reported", path, "using", recent)
			path = recent
		case path != "":
			log.Warn("no recording in module folder, moving the reported file", "reported", path)
		default:
			return fail("locate recording", err)
		}
	}

	stored, err := p.files.Store(ctx, path, job.Dir, title, job.Number)
	if err != nil {
		return fail("store recording", err)
	}
	p.stats.Add(stored.Path, stored.Bytes, duration)

	log.Info("video recorded", "title", title, "file", filepath.Base(stored.Path),
		"size", files.FormatSize(stored.Bytes))
	return &Result{
		Module:   job.Module,
		URL:      job.URL,
		Number:   job.Number,
		Title:    title,
		Path:     stored.Path,
		Bytes:    stored.Bytes,
		Duration: duration,
	}, nil
}

func (p *Processor) title(ctx context.Context, job Job, md *lazyInfo, log *slog.Logger) (string, error) {
	title, err := p.browser.Title(ctx)
	if err == nil && title != "" {
		return title, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	log.Warn("title not found on page", "error", err)

	if info, ok := md.get(ctx); ok && info.Title != "" {
		log.Info("title from API", "title", info.Title)
		return info.Title, nil
	}
	fallback := fmt.Sprintf("video_%02d", job.Number)
	log.Warn("using generic title", "title", fallback)
	return fallback, nil
}

func (p *Processor) duration(ctx context.Context, md *lazyInfo, log *slog.Logger) (time.Duration, error) {
	d, err := p.browser.WaitForDuration(ctx, p.opts.DurationTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		log.Warn("duration not found on page", "error", err)
		if info, ok := md.get(ctx); ok && info.Duration > 0 {
			d = info.Duration
			log.Info("duration from API", "duration", d)
		} else {
			d = p.opts.DefaultDuration
			log.Warn("using default duration", "duration", d)
		}
	}

	if p.opts.TestMode && p.opts.TestMaxDuration > 0 && d > p.opts.TestMaxDuration {
		log.Info("test mode: duration capped", "from", d, "to", p.opts.TestMaxDuration)
		d = p.opts.TestMaxDuration
	}
	return d, nil
}

// cleanup is step 10. It runs even when ctx was cancelled.
func (p *Processor) cleanup(ctx context.Context, log *slog.Logger) {
	log.Info("step 10: cleanup")
	if ctx.Err() == nil {
		_ = p.sleep(ctx, p.opts.CleanupPause)
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	p.obs.EnsureStopped(bg)
	if err := p.browser.ExitFullscreen(bg); err != nil {
		log.Debug("exit fullscreen failed", "error", err)
	}
	p.browser.CloseTab()
}

// lazyInfo fetches API metadata at most once per video.
type lazyInfo struct {
	source metadata.Source
	url    string
	logger *slog.Logger

	done bool
	info metadata.Info
	ok   bool
}

func (l *lazyInfo) get(ctx context.Context) (metadata.Info, bool) {
	if l.source == nil {
		return metadata.Info{}, false
	}
	if !l.done {
		l.done = true
		info, err := l.source.Lookup(ctx, l.url)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				l.logger.Warn("metadata lookup failed", "error", err)
			}
		} else {
			l.info, l.ok = info, true
		}
	}
	return l.info, l.ok
}

// inDir reports whether path lies directly inside dir.
func inDir(dir, path string) bool {
	d, err1 := filepath.Abs(dir)
	p, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return false
	}
	if isWindowsPath(d) {
		return strings.EqualFold(filepath.Dir(p), d)
	}
	return filepath.Dir(p) == d
}

func isWindowsPath(p string) bool {
	return filepath.VolumeName(p) != ""
}
