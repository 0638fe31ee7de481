// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "YTRECORD_"

// Config holds all application configuration for a recording run.
// Durations in the JSON file are strings such as "4s" or "1m30s", or plain
// numbers of seconds.
type Config struct {
	// OBSHost is the host running the obs-websocket server.
	OBSHost string `json:"obs_host"`
	// OBSPort is the obs-websocket port (OBS 28+ defaults to 4455).
	OBSPort int `json:"obs_port"`
	// OBSPassword is the obs-websocket password, empty when authentication is disabled.
	OBSPassword string `json:"obs_password"`
	// OBSTimeout bounds the websocket handshake.
	OBSTimeout time.Duration `json:"obs_timeout"`

	// URLFile is the text file with module headers and video URLs.
	URLFile string `json:"url_file"`
	// OutputDir is where module folders are created.
	OutputDir string `json:"output_dir"`

	// Browser is "brave" or "chrome".
	Browser string `json:"browser"`
	// BrowserPath overrides executable auto-detection.
	BrowserPath string `json:"browser_path"`
	// BrowserProfileDir is passed as --user-data-dir when the browser is launched.
	BrowserProfileDir string `json:"browser_profile_dir"`
	// DebugHost and DebugPort locate the DevTools endpoint.
	DebugHost string `json:"debug_host"`
	DebugPort int    `json:"debug_port"`
	// LaunchBrowser starts the browser when the debug port is closed.
	LaunchBrowser bool `json:"launch_browser"`
	// CloseBrowserOnExit closes the whole browser at the end of the run instead of detaching.
	CloseBrowserOnExit bool `json:"close_browser_on_exit"`

	// StartMargin is recorded before the page loads, EndMargin after playback.
	StartMargin time.Duration `json:"start_margin"`
	EndMargin   time.Duration `json:"end_margin"`

	// Test mode settings
	TestMode               bool          `json:"test_mode"`
	TestStartMargin        time.Duration `json:"test_start_margin"`
	TestEndMargin          time.Duration `json:"test_end_margin"`
	TestMaxModules         int           `json:"test_max_modules"`
	TestMaxVideosPerModule int           `json:"test_max_videos_per_module"`
	TestMaxDuration        time.Duration `json:"test_max_duration"`

	// StartModule skips every module before the named one.
	StartModule string `json:"start_module"`
	// StartVideo is the 1-based video to start at in the first module.
	StartVideo int `json:"start_video"`
	// StartVideoByModule overrides StartVideo per module name.
	StartVideoByModule map[string]int `json:"start_video_by_module"`

	// Timing of the per-video sequence
	DefaultDuration    time.Duration `json:"default_duration"`
	DurationTimeout    time.Duration `json:"duration_timeout"`
	PageLoadTimeout    time.Duration `json:"page_load_timeout"`
	TitleTimeout       time.Duration `json:"title_timeout"`
	PostLoadWait       time.Duration `json:"post_load_wait"`
	BetweenVideosPause time.Duration `json:"between_videos_pause"`
	MonitorInterval    time.Duration `json:"monitor_interval"`
	PopupSweepInterval time.Duration `json:"popup_sweep_interval"`

	// YouTubeAPIKey enables the Data API fallback for titles and durations.
	YouTubeAPIKey string `json:"youtube_api_key"`

	// JournalPath is the JSON file recording runs and recorded videos.
	JournalPath string `json:"journal_path"`
	// Resume skips URLs the journal already lists as recorded.
	Resume bool `json:"resume"`

	// Retry settings
	MaxRetries        int           `json:"max_retries"`
	InitialBackoff    time.Duration `json:"initial_backoff"`
	MaxBackoff        time.Duration `json:"max_backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		OBSHost:                "localhost",
		OBSPort:                4455,
		OBSTimeout:             10 * time.Second,
		URLFile:                "urls.txt",
		OutputDir:              ".",
		Browser:                "brave",
		DebugHost:              "localhost",
		DebugPort:              9222,
		LaunchBrowser:          true,
		StartMargin:            4 * time.Second,
		EndMargin:              4 * time.Second,
		TestStartMargin:        1 * time.Second,
		TestEndMargin:          1 * time.Second,
		TestMaxModules:         1,
		TestMaxVideosPerModule: 2,
		TestMaxDuration:        15 * time.Second,
		StartVideo:             1,
		DefaultDuration:        60 * time.Second,
		DurationTimeout:        30 * time.Second,
		PageLoadTimeout:        30 * time.Second,
		TitleTimeout:           10 * time.Second,
		PostLoadWait:           5 * time.Second,
		BetweenVideosPause:     2 * time.Second,
		MonitorInterval:        2 * time.Second,
		PopupSweepInterval:     5 * time.Second,
		JournalPath:            "ytrecord-journal.json",
		MaxRetries:             3,
		InitialBackoff:         1 * time.Second,
		MaxBackoff:             10 * time.Second,
		BackoffMultiplier:      2.0,
		LogLevel:               "info",
	}
}

// Load loads configuration from a .env file, a config file and environment variables.
// Priority: env vars > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// .env is optional and never overrides variables already set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.loadFromFile(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load config from ytrecord.json in the current directory or home directory.
func (c *Config) loadFromFile() error {
	paths := []string{
		"ytrecord.json",
		filepath.Join(os.Getenv("HOME"), ".config", "ytrecord", "ytrecord.json"),
	}

	for _, path := range paths {
		if err := c.LoadFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		return nil
	}

	return os.ErrNotExist
}

// LoadFile merges the JSON file at path into c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data, err = normalizeDurations(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// normalizeDurations rewrites the duration fields of a config document to
// the nanosecond integers encoding/json expects.
func normalizeDurations(data []byte) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type != durationType {
			continue
		}
		key, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		v, ok := raw[key]
		if !ok {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		raw[key] = json.RawMessage(strconv.FormatInt(int64(d), 10))
	}
	return json.Marshal(raw)
}

func parseDuration(v json.RawMessage) (time.Duration, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return time.ParseDuration(s)
	}
	var secs float64
	if err := json.Unmarshal(v, &secs); err != nil {
		return 0, fmt.Errorf("want a duration like \"4s\" or a number of seconds, got %s", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	envString("OBS_HOST", &c.OBSHost)
	envInt("OBS_PORT", &c.OBSPort)
	envString("OBS_PASSWORD", &c.OBSPassword)
	envDuration("OBS_TIMEOUT", &c.OBSTimeout)

	envString("URL_FILE", &c.URLFile)
	envString("OUTPUT_DIR", &c.OutputDir)

	envString("BROWSER", &c.Browser)
	envString("BROWSER_PATH", &c.BrowserPath)
	envString("BROWSER_PROFILE_DIR", &c.BrowserProfileDir)
	envString("DEBUG_HOST", &c.DebugHost)
	envInt("DEBUG_PORT", &c.DebugPort)
	envBool("LAUNCH_BROWSER", &c.LaunchBrowser)
	envBool("CLOSE_BROWSER_ON_EXIT", &c.CloseBrowserOnExit)

	envDuration("START_MARGIN", &c.StartMargin)
	envDuration("END_MARGIN", &c.EndMargin)

	envBool("TEST_MODE", &c.TestMode)
	envDuration("TEST_START_MARGIN", &c.TestStartMargin)
	envDuration("TEST_END_MARGIN", &c.TestEndMargin)
	envInt("TEST_MAX_MODULES", &c.TestMaxModules)
	envInt("TEST_MAX_VIDEOS_PER_MODULE", &c.TestMaxVideosPerModule)
	envDuration("TEST_MAX_DURATION", &c.TestMaxDuration)

	envString("START_MODULE", &c.StartModule)
	envInt("START_VIDEO", &c.StartVideo)

	envDuration("DEFAULT_DURATION", &c.DefaultDuration)
	envDuration("DURATION_TIMEOUT", &c.DurationTimeout)
	envDuration("PAGE_LOAD_TIMEOUT", &c.PageLoadTimeout)
	envDuration("TITLE_TIMEOUT", &c.TitleTimeout)
	envDuration("POST_LOAD_WAIT", &c.PostLoadWait)
	envDuration("BETWEEN_VIDEOS_PAUSE", &c.BetweenVideosPause)
	envDuration("MONITOR_INTERVAL", &c.MonitorInterval)
	envDuration("POPUP_SWEEP_INTERVAL", &c.PopupSweepInterval)

	envString("YOUTUBE_API_KEY", &c.YouTubeAPIKey)
	envString("JOURNAL_PATH", &c.JournalPath)
	envBool("RESUME", &c.Resume)

	envInt("MAX_RETRIES", &c.MaxRetries)
	envDuration("INITIAL_BACKOFF", &c.InitialBackoff)
	envDuration("MAX_BACKOFF", &c.MaxBackoff)
	if v := os.Getenv(EnvPrefix + "BACKOFF_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.BackoffMultiplier = f
		}
	}

	envString("LOG_LEVEL", &c.LogLevel)
}

func envString(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Margins returns the start and end margins for the active mode.
func (c *Config) Margins() (start, end time.Duration) {
	if c.TestMode {
		return c.TestStartMargin, c.TestEndMargin
	}
	return c.StartMargin, c.EndMargin
}

// OBSAddress returns host:port of the obs-websocket server.
func (c *Config) OBSAddress() string {
	return fmt.Sprintf("%s:%d", c.OBSHost, c.OBSPort)
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.OBSHost == "" {
		return fmt.Errorf("obs_host must not be empty")
	}
	if c.OBSPort <= 0 || c.OBSPort > 65535 {
		return fmt.Errorf("obs_port must be between 1 and 65535")
	}
	if c.OBSTimeout <= 0 {
		return fmt.Errorf("obs_timeout must be positive")
	}
	if c.URLFile == "" {
		return fmt.Errorf("url_file must not be empty")
	}
	switch strings.ToLower(c.Browser) {
	case "brave", "chrome":
	default:
		return fmt.Errorf("browser must be brave or chrome, got %q", c.Browser)
	}
	if c.DebugPort <= 0 || c.DebugPort > 65535 {
		return fmt.Errorf("debug_port must be between 1 and 65535")
	}
	if c.StartMargin < 0 || c.EndMargin < 0 || c.TestStartMargin < 0 || c.TestEndMargin < 0 {
		return fmt.Errorf("margins must be non-negative")
	}
	if c.TestMaxModules < 0 || c.TestMaxVideosPerModule < 0 {
		return fmt.Errorf("test limits must be non-negative")
	}
	if c.TestMaxDuration <= 0 {
		return fmt.Errorf("test_max_duration must be positive")
	}
	if c.StartVideo < 1 {
		return fmt.Errorf("start_video must be >= 1")
	}
	for name, n := range c.StartVideoByModule {
		if n < 1 {
			return fmt.Errorf("start_video_by_module[%q] must be >= 1", name)
		}
	}
	if c.DefaultDuration <= 0 {
		return fmt.Errorf("default_duration must be positive")
	}
	if c.DurationTimeout <= 0 || c.PageLoadTimeout <= 0 || c.TitleTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.PostLoadWait < 0 || c.BetweenVideosPause < 0 {
		return fmt.Errorf("waits must be non-negative")
	}
	if c.MonitorInterval <= 0 || c.PopupSweepInterval <= 0 {
		return fmt.Errorf("monitor intervals must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff <= 0 {
		return fmt.Errorf("max_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}
