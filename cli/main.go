package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"ytrecord/browser"
	"ytrecord/config"
	"ytrecord/files"
	"ytrecord/internal/storage"
	"ytrecord/obs"
	"ytrecord/playlist"
	"ytrecord/recorder"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "run":
		cmdRun(args)
	case "check":
		cmdCheck(args)
	case "history":
		cmdHistory(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ytrecord - record YouTube videos with OBS Studio

Usage:
  ytrecord run [flags]       Record every video of the URL file
  ytrecord check [flags]     Show the recording plan and test the browser and OBS connections
  ytrecord history [flags]   List previous runs from the journal
  ytrecord help              Show this help message

Examples:
  ytrecord run -urls urls.txt -out ~/Videos/course
  ytrecord run -test                                 # 1 module, 2 videos, 15s each
  ytrecord run -from-module "Module 3" -from-video 4 # continue an interrupted run
  ytrecord run -resume                               # skip videos the journal lists as recorded
  ytrecord check -urls urls.txt
  ytrecord history -run <run-id>

Configuration is read from .env, ytrecord.json (or ~/.config/ytrecord/ytrecord.json)
and YTRECORD_* environment variables. Flags override them.

For help on specific command: ytrecord <command> -h
`)
}

// planFlags are shared by run and check.
type planFlags struct {
	configPath *string
	urls       *string
	out        *string
	test       *bool
	fromModule *string
	fromVideo  *int
	resume     *bool
	verbose    *bool
}

func addPlanFlags(fs *flag.FlagSet) *planFlags {
	return &planFlags{
		configPath: fs.String("config", "", "JSON config file merged over the defaults"),
		urls:       fs.String("urls", "", "URL file with '# Module' headers"),
		out:        fs.String("out", "", "Directory for the module folders"),
		test:       fs.Bool("test", false, "Test mode: few modules and videos, short recordings"),
		fromModule: fs.String("from-module", "", "Start at the module with this name"),
		fromVideo:  fs.Int("from-video", 0, "Start at this 1-based video of the first module"),
		resume:     fs.Bool("resume", false, "Skip videos the journal lists as recorded"),
		verbose:    fs.Bool("v", false, "Debug logging"),
	}
}

// loadConfig loads the configuration and applies the flags that were set.
func loadConfig(fs *flag.FlagSet, pf *planFlags) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *pf.configPath != "" {
		if err := cfg.LoadFile(*pf.configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "urls":
			cfg.URLFile = *pf.urls
		case "out":
			cfg.OutputDir = *pf.out
		case "test":
			cfg.TestMode = *pf.test
		case "from-module":
			cfg.StartModule = *pf.fromModule
		case "from-video":
			cfg.StartVideo = *pf.fromVideo
		case "resume":
			cfg.Resume = *pf.resume
		case "v":
			if *pf.verbose {
				cfg.LogLevel = "debug"
			}
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	pf := addPlanFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytrecord run [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg := loadConfig(fs, pf)
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	var journal storage.Journal
	store, err := storage.NewJSONStore(cfg.JournalPath)
	switch {
	case err == nil:
		defer store.Close()
		journal = store
	case cfg.Resume:
		fmt.Fprintf(os.Stderr, "Error opening journal (required by -resume): %v\n", err)
		os.Exit(1)
	default:
		logger.Warn("journal unavailable, run will not be recorded in history", "path", cfg.JournalPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = recorder.NewOrchestrator(cfg, journal, logger).Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, recorder.ErrNothingToRecord):
		fmt.Fprintln(os.Stderr, "Nothing to record: check the URL file and the start filters.")
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Interrupted: the current recording was stopped.")
		if store != nil {
			store.Close()
		}
		os.Exit(130)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if store != nil {
			store.Close()
		}
		os.Exit(1)
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	pf := addPlanFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytrecord check [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg := loadConfig(fs, pf)
	logger := newLogger(cfg.LogLevel)

	var journal storage.Journal
	if cfg.Resume {
		store, err := storage.OpenReadOnly(cfg.JournalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		journal = store
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mods, err := recorder.NewOrchestrator(cfg, journal, logger).Plan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tFOLDER\t#\tURL")
	for _, m := range mods {
		for _, e := range m.Entries {
			fmt.Fprintf(w, "%s\t%s\t%02d\t%s\n", m.Name, playlist.FolderName(m.Name), e.Number, e.URL)
		}
	}
	w.Flush()
	fmt.Fprintf(os.Stderr, "\nTotal: %d videos in %d modules\n", playlist.CountURLs(mods), len(mods))
	if cfg.TestMode {
		start, end := cfg.Margins()
		fmt.Fprintf(os.Stderr, "Test mode: at most %s per video, margins %s/%s\n", cfg.TestMaxDuration, start, end)
	}

	ok := true
	debugAddr := fmt.Sprintf("%s:%d", cfg.DebugHost, cfg.DebugPort)
	if browser.PortOpen(debugAddr, time.Second) {
		fmt.Fprintf(os.Stderr, "Browser debug port %s: open\n", debugAddr)
	} else {
		fmt.Fprintf(os.Stderr, "Browser debug port %s: closed (run will try to launch %s)\n", debugAddr, cfg.Browser)
		if !cfg.LaunchBrowser {
			ok = false
		}
	}

	opts := obs.DefaultOptions()
	opts.Address = cfg.OBSAddress()
	opts.Password = cfg.OBSPassword
	opts.Timeout = cfg.OBSTimeout
	opts.Retry = recorder.RetryConfig(cfg)
	opts.Retry.MaxRetries = 0
	rec, err := obs.Connect(ctx, opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "OBS %s: %v\n", opts.Address, err)
		ok = false
	} else {
		current, scenes, err := rec.SceneInfo(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "OBS %s: connected, scene list failed: %v\n", opts.Address, err)
		} else {
			fmt.Fprintf(os.Stderr, "OBS %s: connected, scene %q of %d\n", opts.Address, current, len(scenes))
		}
		rec.Close()
	}

	if !ok {
		os.Exit(1)
	}
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	runID := fs.String("run", "", "Show the recordings of this run")
	limit := fs.Int("n", 20, "Maximum runs to list (0 = all)")
	journalPath := fs.String("journal", "", "Journal file (default from config)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytrecord history [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	path := *journalPath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		path = cfg.JournalPath
	}

	store, err := storage.OpenReadOnly(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	ctx := context.Background()

	if *runID != "" {
		recs, err := store.Recordings(ctx, *runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			store.Close()
			os.Exit(1)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MODULE\t#\tTITLE\tDURATION\tSIZE\tFILE")
		for _, r := range recs {
			d := time.Duration(r.DurationSeconds * float64(time.Second))
			fmt.Fprintf(w, "%s\t%02d\t%s\t%s\t%s\t%s\n",
				r.Module, r.Number, truncate(r.Title, 50), d.Round(time.Second), files.FormatSize(r.Bytes), r.Path)
		}
		w.Flush()
		return
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		store.Close()
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}
	if *limit > 0 && len(runs) > *limit {
		runs = runs[:*limit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tSTATUS\tRECORDED\tFAILED\tMODE\tURL FILE")
	for _, r := range runs {
		mode := "full"
		if r.TestMode {
			mode = "test"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04"), r.Status, r.Recorded, r.Failed, mode, r.URLFile)
	}
	w.Flush()
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
