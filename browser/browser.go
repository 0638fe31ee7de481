// Package browser drives a running Brave or Chrome over its DevTools debug
// port. Each video gets its own tab; the user's browser and tabs are left
// alone unless CloseOnExit is set.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

var (
	// ErrDebugPortClosed indicates nothing listens on the DevTools port.
	ErrDebugPortClosed = errors.New("browser: debug port not reachable")
	// ErrNoTab indicates an operation that needs a loaded video ran without one.
	ErrNoTab = errors.New("browser: no video tab open")
	// ErrLoadTimeout indicates the page did not finish loading in time.
	ErrLoadTimeout = errors.New("browser: page load timed out")
	// ErrNotYouTube indicates the tab ended up outside YouTube.
	ErrNotYouTube = errors.New("browser: page is not on youtube")
	// ErrFullscreen indicates fullscreen could not be verified.
	ErrFullscreen = errors.New("browser: fullscreen not active")
	// ErrNoTitle indicates no title could be read from the page.
	ErrNoTitle = errors.New("browser: title not found")
	// ErrNoDuration indicates the player never exposed a duration.
	ErrNoDuration = errors.New("browser: duration not available")
)

// Error records a failed browser operation.
type Error struct {
	Op  string
	URL string
	Err error
}

func (e *Error) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("browser: %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("browser: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures the connection and page timings.
type Options struct {
	// Name is "brave" or "chrome".
	Name string
	// ExecPath overrides executable discovery.
	ExecPath string
	// UserDataDir is passed to a launched browser when set.
	UserDataDir string
	Host        string
	Port        int
	// Launch starts the browser when the debug port is closed.
	Launch         bool
	LaunchAttempts int
	LaunchInterval time.Duration
	// CloseOnExit closes the whole browser in Close instead of detaching.
	CloseOnExit bool

	PageLoadTimeout    time.Duration
	PostLoadWait       time.Duration
	TitleTimeout       time.Duration
	PopupSweepInterval time.Duration
}

// DefaultOptions returns the settings for a local Brave on port 9222.
func DefaultOptions() Options {
	return Options{
		Name:               "brave",
		Host:               "localhost",
		Port:               9222,
		Launch:             true,
		LaunchAttempts:     10,
		LaunchInterval:     time.Second,
		PageLoadTimeout:    30 * time.Second,
		PostLoadWait:       5 * time.Second,
		TitleTimeout:       10 * time.Second,
		PopupSweepInterval: 5 * time.Second,
	}
}

func (o Options) addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Session is an attached browser. Tab operations act on the tab opened by the
// last LoadURL.
type Session struct {
	opts    Options
	logger  *slog.Logger
	sweeper *rate.Limiter

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu        sync.Mutex
	tab       context.Context
	tabCancel context.CancelFunc
	tabURL    string
}

// Connect attaches to the browser's DevTools endpoint, launching the browser
// first when the port is closed and opts.Launch is set.
func Connect(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "browser", "browser", opts.Name)

	if _, err := ensureDebugPort(ctx, opts, logger); err != nil {
		return nil, err
	}

	// The session must survive cancellation of ctx so cleanup can still close tabs.
	base := context.WithoutCancel(ctx)
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(base, "ws://"+opts.addr())
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("devtools: " + fmt.Sprintf(format, args...))
		}),
	)

	// Targets attaches to the browser without opening a tab.
	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, &Error{Op: "attach", URL: opts.addr(), Err: err}
	}
	pages := 0
	for _, t := range targets {
		if t.Type == "page" {
			pages++
			logger.Debug("open tab", "title", t.Title, "url", t.URL)
		}
	}
	logger.Info("attached to browser", "address", opts.addr(), "tabs", pages)

	interval := opts.PopupSweepInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Session{
		opts:          opts,
		logger:        logger,
		sweeper:       rate.NewLimiter(rate.Every(interval), 1),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// currentTab returns the active video tab.
func (s *Session) currentTab() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tab == nil {
		return nil, ErrNoTab
	}
	return s.tab, nil
}

// run executes actions on the video tab, aborting when ctx is done.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	tab, err := s.currentTab()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err = chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// CloseTab closes the current video tab, if any.
func (s *Session) CloseTab() {
	s.mu.Lock()
	cancel, url := s.tabCancel, s.tabURL
	s.tab, s.tabCancel, s.tabURL = nil, nil, ""
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.logger.Info("tab closed", "url", url)
	}
}

// Close closes the video tab and detaches from the browser. With CloseOnExit
// the browser itself is closed.
func (s *Session) Close() error {
	s.CloseTab()

	var err error
	if s.opts.CloseOnExit {
		err = chromedp.Cancel(s.browserCtx)
		s.logger.Info("browser closed")
	} else {
		s.browserCancel()
		s.logger.Info("detached from browser")
	}
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return &Error{Op: "close", Err: err}
	}
	return nil
}
