// Package obs controls OBS Studio recording over obs-websocket v5.
package obs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"ytrecord/internal/retry"
)

var (
	// ErrConnect indicates OBS could not be reached or refused the session.
	ErrConnect = errors.New("obs: cannot connect")
	// ErrNotConnected indicates the recorder was closed or never connected.
	ErrNotConnected = errors.New("obs: not connected")
	// ErrNotRecording indicates Stop found no active recording.
	ErrNotRecording = errors.New("obs: no active recording")
	// ErrStartFailed indicates OBS rejected the start and is not recording.
	ErrStartFailed = errors.New("obs: recording did not start")
)

// Error records a failed OBS request.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("obs: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Options configures the connection and the recording timings.
type Options struct {
	Address  string // host:port
	Password string
	Timeout  time.Duration

	// Retry controls reconnection attempts in Connect.
	Retry retry.Config

	// SettleDelay is waited after StartRecord before checking the state.
	SettleDelay time.Duration
	// VerifyAttempts and VerifyInterval bound the start verification.
	VerifyAttempts int
	VerifyInterval time.Duration
	// StopDelay is waited after StopRecord, and after stopping a stray recording.
	StopDelay time.Duration
}

// DefaultOptions returns the timings OBS needs on a typical desktop.
func DefaultOptions() Options {
	return Options{
		Address:        "localhost:4455",
		Timeout:        10 * time.Second,
		Retry:          retry.DefaultConfig(),
		SettleDelay:    3 * time.Second,
		VerifyAttempts: 10,
		VerifyInterval: 500 * time.Millisecond,
		StopDelay:      2 * time.Second,
	}
}

// Recorder drives a single OBS instance. Methods are safe for concurrent use
// but OBS has one recording output, so callers serialize start and stop.
type Recorder struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	ctrl controller
}

// Connect opens the obs-websocket session, retrying transient failures.
func Connect(ctx context.Context, opts Options, logger *slog.Logger) (*Recorder, error) {
	return connect(ctx, opts, logger, dialGoobs)
}

func connect(ctx context.Context, opts Options, logger *slog.Logger, dial dialFunc) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "obs")

	auth := "without password"
	if opts.Password != "" {
		auth = "with password"
	}
	logger.Info("connecting to OBS", "address", opts.Address, "auth", auth)

	var ctrl controller
	err := retry.Do(ctx, opts.Retry, nil, func(ctx context.Context) error {
		c, err := dial(opts.Address, opts.Password, opts.Timeout)
		if err != nil {
			logger.Debug("connect attempt failed", "error", err)
			return err
		}
		ctrl = c
		return nil
	})
	if err != nil {
		logConnectHints(logger, opts.Password != "")
		return nil, fmt.Errorf("%w at %s: %v", ErrConnect, opts.Address, err)
	}

	obsVersion, wsVersion, err := ctrl.Version()
	if err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("%w: version request: %v", ErrConnect, err)
	}
	logger.Info("connected to OBS", "obs_version", obsVersion, "websocket_version", wsVersion)

	return &Recorder{opts: opts, logger: logger, ctrl: ctrl}, nil
}

func logConnectHints(logger *slog.Logger, withPassword bool) {
	logger.Error("could not connect to OBS Studio")
	logger.Error("check that OBS Studio is running")
	logger.Error("check Tools > WebSocket Server Settings: the server must be enabled")
	if withPassword {
		logger.Error("check that the configured password matches the OBS websocket password")
	} else {
		logger.Error("if the OBS websocket server has a password, set obs_password or YTRECORD_OBS_PASSWORD")
	}
}

func (r *Recorder) controller() (controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctrl == nil {
		return nil, ErrNotConnected
	}
	return r.ctrl, nil
}

// Connected reports whether OBS still answers requests.
func (r *Recorder) Connected(ctx context.Context) bool {
	c, err := r.controller()
	if err != nil {
		return false
	}
	_, _, err = c.Version()
	return err == nil
}

// SetRecordDirectory points OBS recordings at dir.
func (r *Recorder) SetRecordDirectory(ctx context.Context, dir string) error {
	c, err := r.controller()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return &Error{Op: "set record directory", Err: err}
	}
	if err := c.SetRecordDirectory(abs); err != nil {
		return &Error{Op: "set record directory", Err: err}
	}
	r.logger.Info("record directory set", "dir", abs)
	return nil
}

// Active reports whether OBS is currently recording. Errors count as not recording.
func (r *Recorder) Active(ctx context.Context) bool {
	c, err := r.controller()
	if err != nil {
		return false
	}
	st, err := c.RecordStatus()
	return err == nil && st.Active
}

// Start begins a recording. A recording left running from earlier is
// stopped first. When OBS accepts the request but the output cannot be seen
// active within the verification window, Start logs a warning and still
// succeeds: OBS sometimes reports the output late.
func (r *Recorder) Start(ctx context.Context) error {
	c, err := r.controller()
	if err != nil {
		return err
	}

	if st, err := c.RecordStatus(); err == nil && st.Active {
		r.logger.Warn("a recording is already active, stopping it first")
		if _, err := c.StopRecord(); err != nil {
			r.logger.Warn("could not stop previous recording", "error", err)
		}
		if err := retry.Sleep(ctx, r.opts.StopDelay); err != nil {
			return err
		}
	}

	startErr := c.StartRecord()
	if startErr != nil {
		r.logger.Error("start record request failed, checking state anyway", "error", startErr)
	}

	if err := retry.Sleep(ctx, r.opts.SettleDelay); err != nil {
		return err
	}

	attempt := 0
	err = retry.Poll(ctx, r.opts.VerifyInterval, r.opts.VerifyAttempts, func(context.Context) (bool, error) {
		attempt++
		st, err := c.RecordStatus()
		if err != nil {
			r.logger.Warn("record status check failed", "attempt", attempt, "error", err)
			return false, nil
		}
		if st.Active {
			r.logger.Info("recording started", "paused", st.Paused, "timecode", st.Timecode)
			return true, nil
		}
		r.logger.Debug("recording not active yet", "attempt", attempt, "of", r.opts.VerifyAttempts)
		return false, nil
	})
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, retry.ErrPollExhausted):
		return err
	case startErr != nil:
		return &Error{Op: "start record", Err: fmt.Errorf("%w: %v", ErrStartFailed, startErr)}
	}

	r.logger.Warn("could not verify that recording started, continuing")
	r.logger.Warn("if nothing is recorded, check that the scene has a source and an output format is set")
	return nil
}

// Stop ends the active recording and returns the file OBS wrote.
// The path may be empty when OBS does not report it.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	c, err := r.controller()
	if err != nil {
		return "", err
	}

	st, err := c.RecordStatus()
	if err != nil {
		return "", &Error{Op: "record status", Err: err}
	}
	if !st.Active {
		r.logger.Warn("no active recording to stop")
		return "", ErrNotRecording
	}

	path, stopErr := c.StopRecord()
	if stopErr != nil {
		r.logger.Error("stop record request failed", "error", stopErr)
	}

	if err := retry.Sleep(ctx, r.opts.StopDelay); err != nil {
		return path, err
	}

	if st, err := c.RecordStatus(); err == nil && st.Active {
		r.logger.Warn("recording still active, stopping again")
		p, err := c.StopRecord()
		if err != nil {
			return path, &Error{Op: "stop record", Err: err}
		}
		if path == "" {
			path = p
		}
		if err := retry.Sleep(ctx, r.opts.StopDelay); err != nil {
			return path, err
		}
	} else if stopErr != nil && err == nil {
		r.logger.Info("recording stopped despite request error")
	}

	if path != "" {
		r.logger.Info("recording stopped", "path", path)
	} else {
		r.logger.Warn("OBS did not report the recording path")
	}
	return path, nil
}

// EnsureStopped stops any active recording, ignoring errors.
func (r *Recorder) EnsureStopped(ctx context.Context) {
	c, err := r.controller()
	if err != nil {
		return
	}
	st, err := c.RecordStatus()
	if err != nil || !st.Active {
		return
	}

	r.logger.Warn("recording still active, forcing stop")
	if _, err := c.StopRecord(); err != nil {
		r.logger.Warn("forced stop failed", "error", err)
		return
	}
	// Cleanup must finish even when the run was cancelled.
	retry.Sleep(context.WithoutCancel(ctx), r.opts.StopDelay)
}

// SceneInfo logs the current program scene and returns the scene names.
func (r *Recorder) SceneInfo(ctx context.Context) (string, []string, error) {
	c, err := r.controller()
	if err != nil {
		return "", nil, err
	}
	current, names, err := c.Scenes()
	if err != nil {
		return "", nil, &Error{Op: "scene list", Err: err}
	}
	r.logger.Info("OBS scenes", "current", current, "count", len(names))
	if len(names) == 0 {
		r.logger.Warn("OBS has no scenes, add a scene with a display or window capture source")
	}
	return current, names, nil
}

// AudioHints logs the manual audio checklist for capturing browser sound.
func (r *Recorder) AudioHints() {
	r.logger.Info("audio: make sure the scene has a Desktop Audio (or Application Audio) source")
	r.logger.Info("audio: check the source is not muted in the Audio Mixer and its meter moves during playback")
	r.logger.Info("audio: in Settings > Audio, set Desktop Audio to the device the browser plays on")
}

// Close disconnects from OBS. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctrl == nil {
		return nil
	}
	err := r.ctrl.Close()
	r.ctrl = nil
	if err != nil {
		return &Error{Op: "disconnect", Err: err}
	}
	r.logger.Info("disconnected from OBS")
	return nil
}
