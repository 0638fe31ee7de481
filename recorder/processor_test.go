package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ytrecord/metadata"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.DefaultDuration = 60 * time.Second
	return opts
}

func newTestProcessor(b *fakeBrowser, o *fakeOBS, f *fakeFiles, meta metadata.Source, opts Options) *Processor {
	p := NewProcessor(b, o, f, meta, opts, nil, discard)
	p.sleep = noSleep
	return p
}

func testJob(t *testing.T) Job {
	t.Helper()
	return Job{
		Module: "Module 1",
		Dir:    t.TempDir(),
		URL:    "https://www.youtube.com/watch?v=abc",
		Number: 3,
		Index:  1,
		Total:  1,
	}
}

func TestProcess_Success(t *testing.T) {
	b := &fakeBrowser{title: "Intro: Go", duration: 3*time.Minute + 5*time.Second}
	o := &fakeOBS{}
	f := &fakeFiles{}
	p := newTestProcessor(b, o, f, nil, testOptions())
	job := testJob(t)

	res, err := p.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if o.dir != job.Dir {
		t.Errorf("record directory = %q, want %q", o.dir, job.Dir)
	}
	if o.starts != 1 || o.stops != 1 {
		t.Errorf("starts/stops = %d/%d, want 1/1", o.starts, o.stops)
	}
	if len(b.monitored) != 1 || b.monitored[0] != 3*time.Minute+5*time.Second {
		t.Errorf("monitored = %v", b.monitored)
	}
	if len(f.calls) != 1 || f.calls[0].src != filepath.Join(job.Dir, "rec.mkv") || f.calls[0].number != 3 {
		t.Errorf("store calls = %+v", f.calls)
	}
	if res.Title != "Intro: Go" || filepath.Base(res.Path) != "03_Intro_Go.mkv" {
		t.Errorf("result = %+v", res)
	}
	if b.closedTabs != 1 || b.exitCalls != 1 || o.ensureCalls != 1 {
		t.Errorf("cleanup: closedTabs=%d exitCalls=%d ensureCalls=%d", b.closedTabs, b.exitCalls, o.ensureCalls)
	}

	st := p.Stats()
	if st.Videos != 1 || st.TotalBytes != 1<<20 || st.TotalDuration != res.Duration || len(st.Files) != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestProcess_TestModeCapsDuration(t *testing.T) {
	opts := testOptions()
	opts.TestMode = true
	opts.TestMaxDuration = 15 * time.Second

	tests := []struct {
		name string
		page time.Duration
		want time.Duration
	}{
		{"long video capped", 10 * time.Minute, 15 * time.Second},
		{"short video kept", 10 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBrowser{title: "t", duration: tt.page}
			p := newTestProcessor(b, &fakeOBS{}, &fakeFiles{}, nil, opts)
			res, err := p.Process(context.Background(), testJob(t))
			if err != nil {
				t.Fatal(err)
			}
			if res.Duration != tt.want || b.monitored[0] != tt.want {
				t.Errorf("duration = %v, monitored %v, want %v", res.Duration, b.monitored[0], tt.want)
			}
		})
	}
}

func TestProcess_MetadataFallback(t *testing.T) {
	b := &fakeBrowser{titleErr: errors.New("no title"), durationErr: errors.New("no duration")}
	src := &fakeSource{info: metadata.Info{Title: "From API", Duration: 42 * time.Second}}
	p := newTestProcessor(b, &fakeOBS{}, &fakeFiles{}, src, testOptions())

	res, err := p.Process(context.Background(), testJob(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Title != "From API" || res.Duration != 42*time.Second {
		t.Errorf("result = %+v", res)
	}
	if src.calls != 1 {
		t.Errorf("lookups = %d, want 1", src.calls)
	}
}

func TestProcess_GenericFallbacks(t *testing.T) {
	b := &fakeBrowser{titleErr: errors.New("no title"), durationErr: errors.New("no duration")}
	src := &fakeSource{err: metadata.ErrVideoNotFound}
	p := newTestProcessor(b, &fakeOBS{}, &fakeFiles{}, src, testOptions())

	res, err := p.Process(context.Background(), testJob(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Title != "video_03" {
		t.Errorf("title = %q, want video_03", res.Title)
	}
	if res.Duration != 60*time.Second {
		t.Errorf("duration = %v, want default 60s", res.Duration)
	}
}

func TestProcess_LoadFailureStopsRecording(t *testing.T) {
	job := Job{Module: "m", URL: "https://youtu.be/x", Number: 1}
	job.Dir = t.TempDir()
	loadErr := errors.New("page load timed out")
	b := &fakeBrowser{loadErrs: map[string]error{job.URL: loadErr}}
	o := &fakeOBS{}
	f := &fakeFiles{}
	p := newTestProcessor(b, o, f, nil, testOptions())

	_, err := p.Process(context.Background(), job)
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "load" {
		t.Fatalf("Process() error = %v, want load StepError", err)
	}
	if !errors.Is(err, loadErr) {
		t.Errorf("error does not wrap the load error")
	}
	if o.active {
		t.Error("recording left active")
	}
	if b.closedTabs != 1 {
		t.Errorf("closedTabs = %d, want 1", b.closedTabs)
	}
	if len(f.calls) != 0 || p.Stats().Videos != 0 {
		t.Error("failed video was stored or counted")
	}
}

func TestProcess_SetupFailures(t *testing.T) {
	tests := []struct {
		name string
		obs  *fakeOBS
		step string
	}{
		{"record directory", &fakeOBS{setDirErr: errors.New("denied")}, "set record directory"},
		{"start", &fakeOBS{startErr: errors.New("busy")}, "start recording"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBrowser{}
			p := newTestProcessor(b, tt.obs, &fakeFiles{}, nil, testOptions())
			_, err := p.Process(context.Background(), testJob(t))
			var stepErr *StepError
			if !errors.As(err, &stepErr) || stepErr.Step != tt.step {
				t.Fatalf("Process() error = %v, want %s StepError", err, tt.step)
			}
			if len(b.loaded) != 0 {
				t.Error("video loaded after a setup failure")
			}
		})
	}
}

func TestProcess_BestEffortSteps(t *testing.T) {
	b := &fakeBrowser{
		title:    "t",
		duration: time.Minute,
		playErr:  errors.New("no video element"),
		fsErr:    errors.New("fullscreen not active"),
	}
	p := newTestProcessor(b, &fakeOBS{}, &fakeFiles{}, nil, testOptions())
	if _, err := p.Process(context.Background(), testJob(t)); err != nil {
		t.Fatalf("Process() error = %v, want play and fullscreen failures tolerated", err)
	}
}

func TestProcess_PathOutsideFolderUsesNewest(t *testing.T) {
	job := testJob(t)
	older := filepath.Join(job.Dir, "2026-01-01 09-00-00.mkv")
	newer := filepath.Join(job.Dir, "2026-01-01 10-00-00.mkv")
	for i, p := range []string{older, newer} {
		if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
			t.Fatal(err)
		}
		mod := time.Now().Add(time.Duration(i-2) * time.Minute)
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatal(err)
		}
	}

	elsewhere := filepath.Join(t.TempDir(), "other.mkv")
	o := &fakeOBS{stopPath: &elsewhere}
	f := &fakeFiles{}
	p := newTestProcessor(&fakeBrowser{title: "t", duration: time.Minute}, o, f, nil, testOptions())

	if _, err := p.Process(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if f.calls[0].src != newer {
		t.Errorf("stored %q, want newest %q", f.calls[0].src, newer)
	}
}

func TestProcess_PathOutsideFolderKeptWhenFolderEmpty(t *testing.T) {
	elsewhere := filepath.Join(t.TempDir(), "2026-01-01 10-00-00.mkv")
	if err := os.WriteFile(elsewhere, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	o := &fakeOBS{stopPath: &elsewhere}
	f := &fakeFiles{}
	p := newTestProcessor(&fakeBrowser{title: "t", duration: time.Minute}, o, f, nil, testOptions())

	job := testJob(t)
	res, err := p.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(f.calls) != 1 || f.calls[0].src != elsewhere {
		t.Fatalf("store calls = %+v, want the reported file", f.calls)
	}
	if f.calls[0].dir != job.Dir {
		t.Errorf("stored into %q, want module folder %q", f.calls[0].dir, job.Dir)
	}
	if res.Path == "" {
		t.Error("Result.Path empty")
	}
}

func TestProcess_EmptyPathAndNoFile(t *testing.T) {
	empty := ""
	o := &fakeOBS{stopPath: &empty}
	p := newTestProcessor(&fakeBrowser{title: "t", duration: time.Minute}, o, &fakeFiles{}, nil, testOptions())

	_, err := p.Process(context.Background(), testJob(t))
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "locate recording" {
		t.Fatalf("Process() error = %v, want locate recording StepError", err)
	}
}

func TestProcess_CancelledDuringPlayback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &fakeBrowser{title: "t", duration: time.Hour, onMonitor: cancel}
	o := &fakeOBS{}
	f := &fakeFiles{}
	p := newTestProcessor(b, o, f, nil, testOptions())

	_, err := p.Process(ctx, testJob(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}
	if o.active || o.ensureCalls != 1 {
		t.Errorf("recording active=%v ensureCalls=%d", o.active, o.ensureCalls)
	}
	if b.closedTabs != 1 {
		t.Error("tab not closed after cancellation")
	}
	if len(f.calls) != 0 {
		t.Error("cancelled video was stored")
	}
}

func TestInDir(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"direct child", filepath.Join(dir, "a.mkv"), true},
		{"nested", filepath.Join(dir, "sub", "a.mkv"), false},
		{"sibling", filepath.Join(filepath.Dir(dir), "a.mkv"), false},
		{"dotted", filepath.Join(dir, "x", "..", "a.mkv"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inDir(dir, tt.path); got != tt.want {
				t.Errorf("inDir(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
