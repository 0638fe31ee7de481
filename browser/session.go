package browser

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"ytrecord/internal/retry"
)

// LoadURL opens url in a fresh tab, waits for the document to finish loading
// and checks the tab is still on YouTube. Any previous video tab is closed.
func (s *Session) LoadURL(ctx context.Context, url string) error {
	s.CloseTab()

	tab, cancel := chromedp.NewContext(s.browserCtx)
	s.mu.Lock()
	s.tab, s.tabCancel, s.tabURL = tab, cancel, url
	s.mu.Unlock()

	s.logger.Info("loading video", "url", url)

	// Create the target on the tab context itself so a load timeout does not
	// tear the tab down.
	if err := chromedp.Run(tab); err != nil {
		s.CloseTab()
		return &Error{Op: "open tab", URL: url, Err: err}
	}

	loadCtx, loadCancel := context.WithTimeout(ctx, s.opts.PageLoadTimeout)
	defer loadCancel()
	var ready bool
	err := s.run(loadCtx,
		chromedp.Navigate(url),
		chromedp.Poll(readyStateJS, &ready,
			chromedp.WithPollingTimeout(s.opts.PageLoadTimeout),
			chromedp.WithPollingInterval(250*time.Millisecond)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, chromedp.ErrPollingTimeout) || errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
			return &Error{Op: "load", URL: url, Err: ErrLoadTimeout}
		}
		return &Error{Op: "load", URL: url, Err: err}
	}

	var location string
	if err := s.run(ctx, chromedp.Location(&location)); err != nil {
		return &Error{Op: "load", URL: url, Err: err}
	}
	if !strings.Contains(location, "youtube.com") {
		return &Error{Op: "load", URL: location, Err: ErrNotYouTube}
	}

	s.logger.Debug("page loaded, waiting for player", "wait", s.opts.PostLoadWait)
	return retry.Sleep(ctx, s.opts.PostLoadWait)
}

// Play scrolls to the player and starts playback, then clears popups and ads
// once.
func (s *Session) Play(ctx context.Context) error {
	var hasVideo bool
	if err := s.run(ctx, chromedp.Evaluate(playJS, &hasVideo)); err != nil {
		return &Error{Op: "play", Err: err}
	}
	if !hasVideo {
		s.logger.Warn("no video element on page")
	}
	if err := retry.Sleep(ctx, 300*time.Millisecond); err != nil {
		return err
	}
	s.DismissPopups(ctx, 1, true)
	s.SkipAds(ctx, 1)
	return nil
}

// maximize puts the tab's window in the maximized state.
func (s *Session) maximize(ctx context.Context) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, _, err := cdpbrowser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		return cdpbrowser.SetWindowBounds(id, &cdpbrowser.Bounds{
			WindowState: cdpbrowser.WindowStateMaximized,
		}).Do(ctx)
	}))
}

func (s *Session) isFullscreen(ctx context.Context) bool {
	var fs bool
	if err := s.run(ctx, chromedp.Evaluate(fullscreenJS, &fs)); err != nil {
		s.logger.Debug("fullscreen check failed", "error", err)
		return false
	}
	return fs
}

// EnterFullscreen maximizes the window and switches the player to fullscreen,
// first with the "f" key and then with the player's fullscreen button.
func (s *Session) EnterFullscreen(ctx context.Context) error {
	if _, err := s.currentTab(); err != nil {
		return err
	}
	if err := s.maximize(ctx); err != nil {
		s.logger.Debug("maximize failed", "error", err)
	}
	if s.isFullscreen(ctx) {
		s.logger.Info("already in fullscreen")
		return nil
	}

	if err := s.run(ctx, chromedp.KeyEvent("f")); err != nil {
		s.logger.Debug("fullscreen key failed", "error", err)
	}
	if err := retry.Sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if s.isFullscreen(ctx) {
		s.logger.Info("fullscreen on", "method", "key")
		return nil
	}

	clickCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := s.run(clickCtx, chromedp.Click(".ytp-fullscreen-button", chromedp.ByQuery, chromedp.NodeVisible))
	cancel()
	if err != nil {
		s.logger.Debug("fullscreen button failed", "error", err)
	}
	if err := retry.Sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if s.isFullscreen(ctx) {
		s.logger.Info("fullscreen on", "method", "button")
		return nil
	}
	return &Error{Op: "fullscreen", Err: ErrFullscreen}
}

// ExitFullscreen leaves fullscreen when it is active.
func (s *Session) ExitFullscreen(ctx context.Context) error {
	var exited bool
	if err := s.run(ctx, chromedp.Evaluate(exitFullscreenJS, &exited)); err != nil {
		return &Error{Op: "exit fullscreen", Err: err}
	}
	if exited {
		s.logger.Info("fullscreen off")
		return retry.Sleep(ctx, 300*time.Millisecond)
	}
	return nil
}

// Title returns the video title from the watch page heading, falling back to
// the document title without its " - YouTube" suffix.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, chromedp.Poll(titleJS(), &title,
		chromedp.WithPollingTimeout(s.opts.TitleTimeout),
		chromedp.WithPollingInterval(500*time.Millisecond),
	))
	if err == nil && strings.TrimSpace(title) != "" {
		title = strings.TrimSpace(title)
		s.logger.Info("title found", "title", title)
		return title, nil
	}
	if err != nil && !errors.Is(err, chromedp.ErrPollingTimeout) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Debug("title selectors failed", "error", err)
	}

	var doc string
	if err := s.run(ctx, chromedp.Title(&doc)); err != nil {
		return "", &Error{Op: "title", Err: err}
	}
	doc = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(doc), "- YouTube"))
	if doc == "" || doc == "YouTube" {
		return "", &Error{Op: "title", Err: ErrNoTitle}
	}
	s.logger.Info("title from document", "title", doc)
	return doc, nil
}

type durationProbe struct {
	Text    string  `json:"text"`
	Seconds float64 `json:"seconds"`
}

// WaitForDuration polls the player once per second, up to limit, until it
// reports a positive duration. The visible label wins over the media element.
func (s *Session) WaitForDuration(ctx context.Context, limit time.Duration) (time.Duration, error) {
	attempts := int(limit / time.Second)
	if attempts < 1 {
		attempts = 1
	}

	var found time.Duration
	err := retry.Poll(ctx, time.Second, attempts, func(ctx context.Context) (bool, error) {
		var probe durationProbe
		if err := s.run(ctx, chromedp.Evaluate(durationJS, &probe)); err != nil {
			if errors.Is(err, ErrNoTab) {
				return false, err
			}
			s.logger.Debug("duration probe failed", "error", err)
			return false, nil
		}
		if probe.Text != "" && probe.Text != "0:00" {
			if d, err := ParseClock(probe.Text); err == nil && d > 0 {
				found = d
				return true, nil
			}
		}
		if probe.Seconds > 0 {
			found = time.Duration(probe.Seconds * float64(time.Second)).Round(time.Second)
			return found > 0, nil
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrPollExhausted) {
			return 0, &Error{Op: "duration", Err: ErrNoDuration}
		}
		return 0, err
	}
	s.logger.Info("duration found", "duration", found)
	return found, nil
}

// DismissPopups clicks visible popup buttons up to attempts rounds and returns
// how many were clicked.
func (s *Session) DismissPopups(ctx context.Context, attempts int, silent bool) int {
	script := clickVisibleJS(popupSelectors, false)
	total := 0
	for i := 0; i < attempts; i++ {
		var n int
		if err := s.run(ctx, chromedp.Evaluate(script, &n)); err != nil {
			s.logger.Debug("popup sweep failed", "error", err)
			break
		}
		if n == 0 {
			break
		}
		total += n
		if retry.Sleep(ctx, 300*time.Millisecond) != nil {
			break
		}
	}
	if total > 0 {
		level := slog.LevelInfo
		if silent {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, "popups dismissed", "count", total)
	}
	return total
}

// SkipAds clicks a skip button while an ad is showing, for up to attempts
// rounds. It reports whether an ad was skipped.
func (s *Session) SkipAds(ctx context.Context, attempts int) bool {
	script := clickVisibleJS(skipAdSelectors, true)
	for i := 0; i < attempts; i++ {
		var n int
		if err := s.run(ctx, chromedp.Evaluate(script, &n)); err != nil {
			s.logger.Debug("ad check failed", "error", err)
			return false
		}
		if n > 0 {
			s.logger.Info("ad skipped")
			_ = retry.Sleep(ctx, time.Second)
			return true
		}

		var showing bool
		if err := s.run(ctx, chromedp.Evaluate(adActiveJS, &showing)); err != nil || !showing {
			return false
		}
		if retry.Sleep(ctx, 500*time.Millisecond) != nil {
			return false
		}
	}
	return false
}

// Monitor waits for d while the video plays, sweeping popups and ads at most
// once per PopupSweepInterval. It returns early only when ctx is done.
func (s *Session) Monitor(ctx context.Context, d, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	start := time.Now()
	deadline := start.Add(d)
	lastReport := start

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if err := retry.Sleep(ctx, min(interval, remaining)); err != nil {
			return err
		}
		if s.sweeper.Allow() {
			s.DismissPopups(ctx, 1, true)
			s.SkipAds(ctx, 1)
		}
		if time.Since(lastReport) >= 30*time.Second {
			lastReport = time.Now()
			elapsed := time.Since(start).Round(time.Second)
			s.logger.Info("recording", "elapsed", elapsed, "total", d.Round(time.Second))
		}
	}
}
