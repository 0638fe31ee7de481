package recorder

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"ytrecord/files"
	"ytrecord/metadata"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type fakeBrowser struct {
	mu sync.Mutex

	loadErrs    map[string]error
	playErr     error
	fsErr       error
	title       string
	titleErr    error
	duration    time.Duration
	durationErr error
	// onMonitor runs inside Monitor, e.g. to cancel the run.
	onMonitor func()

	loaded     []string
	monitored  []time.Duration
	exitCalls  int
	closedTabs int
	closed     bool
}

func (b *fakeBrowser) LoadURL(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loaded = append(b.loaded, url)
	return b.loadErrs[url]
}

func (b *fakeBrowser) Play(context.Context) error            { return b.playErr }
func (b *fakeBrowser) EnterFullscreen(context.Context) error { return b.fsErr }

func (b *fakeBrowser) ExitFullscreen(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exitCalls++
	return nil
}

func (b *fakeBrowser) Title(context.Context) (string, error) { return b.title, b.titleErr }

func (b *fakeBrowser) WaitForDuration(context.Context, time.Duration) (time.Duration, error) {
	return b.duration, b.durationErr
}

func (b *fakeBrowser) Monitor(ctx context.Context, d, _ time.Duration) error {
	b.mu.Lock()
	b.monitored = append(b.monitored, d)
	hook := b.onMonitor
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

func (b *fakeBrowser) CloseTab() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closedTabs++
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

type fakeOBS struct {
	mu sync.Mutex

	setDirErr error
	startErr  error
	stopErr   error
	// stopPath overrides the path Stop reports; by default it is rec.mkv in the record directory.
	stopPath *string

	dir          string
	active       bool
	starts       int
	stops        int
	ensureCalls  int
	closed       bool
	sceneCurrent string
}

func (o *fakeOBS) SetRecordDirectory(_ context.Context, dir string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.setDirErr != nil {
		return o.setDirErr
	}
	o.dir = dir
	return nil
}

func (o *fakeOBS) Start(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	if o.startErr != nil {
		return o.startErr
	}
	o.active = true
	return nil
}

func (o *fakeOBS) Stop(context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stops++
	if o.stopErr != nil {
		return "", o.stopErr
	}
	o.active = false
	if o.stopPath != nil {
		return *o.stopPath, nil
	}
	return filepath.Join(o.dir, "rec.mkv"), nil
}

func (o *fakeOBS) EnsureStopped(context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensureCalls++
	o.active = false
}

func (o *fakeOBS) SceneInfo(context.Context) (string, []string, error) {
	return o.sceneCurrent, []string{o.sceneCurrent}, nil
}

func (o *fakeOBS) AudioHints() {}

func (o *fakeOBS) Close() error {
	o.closed = true
	return nil
}

type storeCall struct {
	src, dir, title string
	number          int
}

// fakeFiles pretends every recording is 1 MiB and stored under its final name.
type fakeFiles struct {
	calls []storeCall
	err   error
}

func (f *fakeFiles) Store(_ context.Context, src, dir, title string, number int) (files.Stored, error) {
	f.calls = append(f.calls, storeCall{src, dir, title, number})
	if f.err != nil {
		return files.Stored{}, f.err
	}
	name := files.NewManager(files.Options{}, discard).Name(title, number, filepath.Ext(src))
	return files.Stored{Path: filepath.Join(dir, name), Bytes: 1 << 20}, nil
}

type fakeSource struct {
	info  metadata.Info
	err   error
	calls int
}

func (s *fakeSource) Lookup(context.Context, string) (metadata.Info, error) {
	s.calls++
	return s.info, s.err
}
