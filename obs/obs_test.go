package obs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"ytrecord/internal/retry"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeOBS simulates the record output of OBS.
type fakeOBS struct {
	mu sync.Mutex

	active       bool
	dir          string
	startCalls   int
	stopCalls    int
	closed       bool
	startErr     error
	ignoreStart  bool // accept StartRecord without activating
	stickyStops  int  // StopRecord calls that leave the output active
	statusErr    error
	outputPath   string
	scenes       []string
	currentScene string
}

func (f *fakeOBS) Version() (string, string, error) { return "30.1.2", "5.4.2", nil }

func (f *fakeOBS) SetRecordDirectory(dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dir = dir
	return nil
}

func (f *fakeOBS) StartRecord() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	if !f.ignoreStart {
		f.active = true
	}
	return nil
}

func (f *fakeOBS) StopRecord() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if !f.active {
		return "", errors.New("output not active")
	}
	if f.stickyStops > 0 {
		f.stickyStops--
		return "", nil
	}
	f.active = false
	return f.outputPath, nil
}

func (f *fakeOBS) RecordStatus() (recordStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return recordStatus{}, f.statusErr
	}
	return recordStatus{Active: f.active, Timecode: "00:00:01.000"}, nil
}

func (f *fakeOBS) Scenes() (string, []string, error) { return f.currentScene, f.scenes, nil }

func (f *fakeOBS) Close() error {
	f.closed = true
	return nil
}

func testOptions() Options {
	return Options{
		Address:        "localhost:4455",
		Timeout:        time.Second,
		Retry:          retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2},
		VerifyAttempts: 3,
		VerifyInterval: time.Millisecond,
	}
}

func newTestRecorder(t *testing.T, f *fakeOBS) *Recorder {
	t.Helper()
	r, err := connect(context.Background(), testOptions(), discard, func(string, string, time.Duration) (controller, error) {
		return f, nil
	})
	if err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	return r
}

func TestConnect_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	f := &fakeOBS{}
	r, err := connect(context.Background(), testOptions(), discard, func(addr, pw string, _ time.Duration) (controller, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("connection refused")
		}
		return f, nil
	})
	if err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("dial calls = %d, want 2", calls)
	}
	if !r.Connected(context.Background()) {
		t.Error("Connected() = false, want true")
	}
}

func TestConnect_Fails(t *testing.T) {
	_, err := connect(context.Background(), testOptions(), discard, func(string, string, time.Duration) (controller, error) {
		return nil, errors.New("connection refused")
	})
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("connect() error = %v, want ErrConnect", err)
	}
}

func TestStartStop(t *testing.T) {
	f := &fakeOBS{outputPath: "/rec/2026-01-01.mkv"}
	r := newTestRecorder(t, f)
	ctx := context.Background()

	if err := r.SetRecordDirectory(ctx, "/rec"); err != nil {
		t.Fatalf("SetRecordDirectory() error = %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !r.Active(ctx) {
		t.Fatal("Active() = false after Start")
	}

	path, err := r.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if path != "/rec/2026-01-01.mkv" {
		t.Errorf("Stop() path = %q", path)
	}
	if r.Active(ctx) {
		t.Error("Active() = true after Stop")
	}
}

func TestStart_StopsStrayRecording(t *testing.T) {
	f := &fakeOBS{active: true}
	r := newTestRecorder(t, f)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.stopCalls != 1 || f.startCalls != 1 {
		t.Errorf("stop/start calls = %d/%d, want 1/1", f.stopCalls, f.startCalls)
	}
	if !f.active {
		t.Error("recording not active after Start")
	}
}

func TestStart_UnverifiedStillSucceeds(t *testing.T) {
	f := &fakeOBS{ignoreStart: true}
	r := newTestRecorder(t, f)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want nil for unverified start", err)
	}
}

func TestStart_RejectedFails(t *testing.T) {
	f := &fakeOBS{startErr: errors.New("output busy")}
	r := newTestRecorder(t, f)

	err := r.Start(context.Background())
	if !errors.Is(err, ErrStartFailed) {
		t.Fatalf("Start() error = %v, want ErrStartFailed", err)
	}
}

func TestStop_NotRecording(t *testing.T) {
	r := newTestRecorder(t, &fakeOBS{})
	if _, err := r.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Stop() error = %v, want ErrNotRecording", err)
	}
}

func TestStop_StopsAgainWhenStillActive(t *testing.T) {
	f := &fakeOBS{active: true, stickyStops: 1, outputPath: "/rec/a.mkv"}
	r := newTestRecorder(t, f)

	path, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if f.stopCalls != 2 {
		t.Errorf("stop calls = %d, want 2", f.stopCalls)
	}
	if path != "/rec/a.mkv" {
		t.Errorf("path = %q, want path from second stop", path)
	}
	if f.active {
		t.Error("still active")
	}
}

func TestEnsureStopped(t *testing.T) {
	f := &fakeOBS{active: true}
	r := newTestRecorder(t, f)
	r.EnsureStopped(context.Background())
	if f.active {
		t.Error("EnsureStopped() left the recording active")
	}

	idle := &fakeOBS{}
	newTestRecorder(t, idle).EnsureStopped(context.Background())
	if idle.stopCalls != 0 {
		t.Error("EnsureStopped() stopped an idle output")
	}
}

func TestSceneInfo(t *testing.T) {
	f := &fakeOBS{currentScene: "Browser", scenes: []string{"Browser", "Camera"}}
	r := newTestRecorder(t, f)

	current, names, err := r.SceneInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if current != "Browser" || len(names) != 2 {
		t.Errorf("SceneInfo() = %q, %v", current, names)
	}
}

func TestClose(t *testing.T) {
	f := &fakeOBS{}
	r := newTestRecorder(t, f)

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if !f.closed {
		t.Error("controller not closed")
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Start() after Close error = %v, want ErrNotConnected", err)
	}
	if r.Connected(context.Background()) {
		t.Error("Connected() = true after Close")
	}
}
