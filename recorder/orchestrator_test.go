package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ytrecord/config"
	"ytrecord/internal/storage"
	"ytrecord/metadata"
	"ytrecord/playlist"
)

const urlFile = `# Basics
https://www.youtube.com/watch?v=a1
https://www.youtube.com/watch?v=a2

# Advanced
https://www.youtube.com/watch?v=b1
`

type harness struct {
	cfg     *config.Config
	journal *storage.JSONStore
	browser *fakeBrowser
	obs     *fakeOBS
	files   *fakeFiles
	orch    *Orchestrator

	browserConnects int
}

func newHarness(t *testing.T, content string) *harness {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.URLFile = filepath.Join(dir, "urls.txt")
	cfg.OutputDir = filepath.Join(dir, "out")
	if err := os.WriteFile(cfg.URLFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	journal, err := storage.NewJSONStore(filepath.Join(dir, "journal.json"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { journal.Close() })

	h := &harness{
		cfg:     cfg,
		journal: journal,
		browser: &fakeBrowser{title: "Lesson", duration: 90 * time.Second},
		obs:     &fakeOBS{sceneCurrent: "Browser"},
		files:   &fakeFiles{},
	}
	h.orch = NewOrchestrator(cfg, journal, discard)
	h.orch.sleep = noSleep
	h.orch.files = h.files
	h.orch.connectOBS = func(context.Context) (OBSClient, error) { return h.obs, nil }
	h.orch.connectBrowser = func(context.Context) (BrowserClient, error) {
		h.browserConnects++
		return h.browser, nil
	}
	h.orch.newSource = func(context.Context) (metadata.Source, error) { return nil, nil }
	return h
}

func (h *harness) lastRun(t *testing.T) *storage.Run {
	t.Helper()
	runs, err := h.journal.ListRuns(context.Background())
	if err != nil || len(runs) == 0 {
		t.Fatalf("ListRuns() = %v, %v", runs, err)
	}
	return runs[0]
}

func TestRun_RecordsEveryVideo(t *testing.T) {
	h := newHarness(t, urlFile)
	failing := "https://www.youtube.com/watch?v=a2"
	h.browser.loadErrs = map[string]error{failing: errors.New("page load timed out")}

	if err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(h.browser.loaded) != 3 {
		t.Errorf("loaded %d videos, want 3 (a failing video must not stop the run)", len(h.browser.loaded))
	}
	if got := h.orch.Stats().Videos; got != 2 {
		t.Errorf("Stats().Videos = %d, want 2", got)
	}
	if !h.obs.closed || !h.browser.closed {
		t.Errorf("connections not closed: obs=%v browser=%v", h.obs.closed, h.browser.closed)
	}

	for _, name := range []string{"Basics", "Advanced"} {
		if info, err := os.Stat(filepath.Join(h.cfg.OutputDir, name)); err != nil || !info.IsDir() {
			t.Errorf("module folder %s missing", name)
		}
	}

	run := h.lastRun(t)
	if run.Status != storage.RunStatusCompleted || run.Recorded != 2 || run.Failed != 1 {
		t.Errorf("run = %+v", run)
	}
	recs, err := h.journal.Recordings(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Module != "Basics" || recs[1].Module != "Advanced" {
		t.Errorf("recordings = %+v", recs)
	}
	if !h.journal.IsRecorded(context.Background(), "Basics", "https://www.youtube.com/watch?v=a1") {
		t.Error("recorded URL not in journal")
	}
}

func TestRun_ResumeSkipsRecorded(t *testing.T) {
	h := newHarness(t, urlFile)
	if err := h.orch.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.cfg.Resume = true
	h.browser.loaded = nil
	err := h.orch.Run(context.Background())
	if !errors.Is(err, ErrNothingToRecord) {
		t.Fatalf("second Run() error = %v, want ErrNothingToRecord", err)
	}
	if len(h.browser.loaded) != 0 {
		t.Errorf("resumed run loaded %v", h.browser.loaded)
	}
}

func TestRun_OBSUnavailable(t *testing.T) {
	h := newHarness(t, urlFile)
	connectErr := errors.New("obs: cannot connect")
	h.orch.connectOBS = func(context.Context) (OBSClient, error) { return nil, connectErr }

	if err := h.orch.Run(context.Background()); !errors.Is(err, connectErr) {
		t.Fatalf("Run() error = %v, want connect error", err)
	}
	if h.browserConnects != 0 {
		t.Error("browser connected although OBS was unavailable")
	}
}

func TestRun_BrowserUnavailableClosesOBS(t *testing.T) {
	h := newHarness(t, urlFile)
	portErr := errors.New("browser: debug port not reachable")
	h.orch.connectBrowser = func(context.Context) (BrowserClient, error) { return nil, portErr }

	if err := h.orch.Run(context.Background()); !errors.Is(err, portErr) {
		t.Fatalf("Run() error = %v, want port error", err)
	}
	if !h.obs.closed {
		t.Error("OBS left connected")
	}
}

func TestRun_MissingURLFile(t *testing.T) {
	h := newHarness(t, urlFile)
	h.cfg.URLFile = filepath.Join(t.TempDir(), "missing.txt")

	if err := h.orch.Run(context.Background()); !errors.Is(err, playlist.ErrURLFileNotFound) {
		t.Fatalf("Run() error = %v, want ErrURLFileNotFound", err)
	}
}

func TestRun_CancelStopsAfterCurrentVideo(t *testing.T) {
	h := newHarness(t, urlFile)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.browser.onMonitor = cancel

	err := h.orch.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(h.browser.loaded) != 1 {
		t.Errorf("loaded %d videos after cancel, want 1", len(h.browser.loaded))
	}
	if h.obs.active {
		t.Error("recording left active")
	}
	if !h.obs.closed || !h.browser.closed {
		t.Error("connections not closed after cancel")
	}
	if run := h.lastRun(t); run.Status != storage.RunStatusCancelled {
		t.Errorf("run status = %s, want cancelled", run.Status)
	}
}

func TestPlan(t *testing.T) {
	content := `# One
https://youtu.be/1
https://youtu.be/2
https://youtu.be/3
# Two
https://youtu.be/4
https://youtu.be/5
# Three
https://youtu.be/6
`
	tests := []struct {
		name   string
		adjust func(*config.Config)
		want   map[string][]int
	}{
		{
			name:   "everything",
			adjust: func(*config.Config) {},
			want:   map[string][]int{"One": {1, 2, 3}, "Two": {1, 2}, "Three": {1}},
		},
		{
			name:   "start module and video",
			adjust: func(c *config.Config) { c.StartModule = "Two"; c.StartVideo = 2 },
			want:   map[string][]int{"Two": {2}, "Three": {1}},
		},
		{
			name:   "test mode limits",
			adjust: func(c *config.Config) { c.TestMode = true; c.TestMaxModules = 2; c.TestMaxVideosPerModule = 1 },
			want:   map[string][]int{"One": {1}, "Two": {1}},
		},
		{
			name: "per module start",
			adjust: func(c *config.Config) {
				c.StartVideoByModule = map[string]int{"One": 3, "Two": 2}
			},
			want: map[string][]int{"One": {3}, "Two": {2}, "Three": {1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, content)
			tt.adjust(h.cfg)

			mods, err := h.orch.Plan(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			got := map[string][]int{}
			for _, m := range mods {
				for _, e := range m.Entries {
					got[m.Name] = append(got[m.Name], e.Number)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Plan() = %v, want %v", got, tt.want)
			}
			for name, nums := range tt.want {
				if len(got[name]) != len(nums) {
					t.Errorf("module %s = %v, want %v", name, got[name], nums)
					continue
				}
				for i := range nums {
					if got[name][i] != nums[i] {
						t.Errorf("module %s = %v, want %v", name, got[name], nums)
						break
					}
				}
			}
		})
	}
}

func TestConfigMapping(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TestMode = true
	cfg.Browser = "chrome"
	cfg.DebugPort = 9333
	cfg.BrowserProfileDir = "/tmp/profile"
	cfg.MaxRetries = 7

	popts := ProcessorOptions(cfg)
	if popts.StartMargin != cfg.TestStartMargin || popts.EndMargin != cfg.TestEndMargin || !popts.TestMode {
		t.Errorf("ProcessorOptions() = %+v", popts)
	}
	bopts := BrowserOptions(cfg)
	if bopts.Name != "chrome" || bopts.Port != 9333 || bopts.UserDataDir != "/tmp/profile" {
		t.Errorf("BrowserOptions() = %+v", bopts)
	}
	if rc := RetryConfig(cfg); rc.MaxRetries != 7 {
		t.Errorf("RetryConfig().MaxRetries = %d, want 7", rc.MaxRetries)
	}
}
