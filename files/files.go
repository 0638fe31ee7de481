// Package files moves finished recordings into their module folders under
// numbered, readable names.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ytrecord/internal/retry"
)

// ErrFileMissing indicates the recording never appeared on disk.
var ErrFileMissing = errors.New("files: recording not found")

// TestSuffix is appended to file names recorded in test mode.
const TestSuffix = "_TEST"

// VideoExtensions are the container formats the recorder can produce.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".mov":  true,
	".avi":  true,
	".flv":  true,
	".webm": true,
}

// Options configures a Manager.
type Options struct {
	// TestMode adds TestSuffix to stored names.
	TestMode bool
	// ReleaseDelay is waited before touching a freshly stopped recording.
	ReleaseDelay time.Duration
	// WaitAttempts and WaitInterval bound the wait for a late file.
	WaitAttempts int
	WaitInterval time.Duration
}

// DefaultOptions returns the timings used against OBS.
func DefaultOptions() Options {
	return Options{
		ReleaseDelay: 2 * time.Second,
		WaitAttempts: 5,
		WaitInterval: 2 * time.Second,
	}
}

// Manager stores recordings.
type Manager struct {
	opts   Options
	logger *slog.Logger
}

// NewManager returns a Manager. A nil logger uses slog.Default.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{opts: opts, logger: logger.With("component", "files")}
}

// Stored describes a recording after it was moved into place.
type Stored struct {
	Path  string
	Bytes int64
}

// Name returns the stored file name for a video: NN_title[_TEST].ext.
func (m *Manager) Name(title string, number int, ext string) string {
	suffix := ""
	if m.opts.TestMode {
		suffix = TestSuffix
	}
	return fmt.Sprintf("%02d_%s%s%s", number, SanitizeFilename(title), suffix, ext)
}

// Store waits for src, then renames it into dir as Name(title, number, ext of src).
// An existing file with the target name is replaced.
func (m *Manager) Store(ctx context.Context, src, dir, title string, number int) (Stored, error) {
	if err := retry.Sleep(ctx, m.opts.ReleaseDelay); err != nil {
		return Stored{}, err
	}

	if err := m.waitFor(ctx, src); err != nil {
		return Stored{}, err
	}
	m.logger.Info("recording found", "path", src)

	dst := filepath.Join(dir, m.Name(title, number, filepath.Ext(src)))
	if samePath(src, dst) {
		return stat(dst)
	}

	if _, err := os.Stat(dst); err == nil {
		m.logger.Warn("file already exists, overwriting", "file", filepath.Base(dst))
		if err := os.Remove(dst); err != nil {
			m.logger.Warn("could not remove existing file", "error", err)
		}
	}

	if err := move(src, dst); err != nil {
		return Stored{}, fmt.Errorf("move recording: %w", err)
	}

	st, err := stat(dst)
	if err != nil {
		return Stored{}, fmt.Errorf("verify recording: %w", err)
	}
	m.logger.Info("recording saved", "file", filepath.Base(dst), "size", FormatSize(st.Bytes))
	return st, nil
}

func (m *Manager) waitFor(ctx context.Context, path string) error {
	if exists(path) {
		return nil
	}
	m.logger.Warn("recording not on disk yet, waiting", "path", path)

	attempt := 0
	err := retry.Poll(ctx, m.opts.WaitInterval, m.opts.WaitAttempts+1, func(context.Context) (bool, error) {
		attempt++
		if attempt > 1 {
			m.logger.Info("waiting for recording", "attempt", attempt-1, "of", m.opts.WaitAttempts)
		}
		return exists(path), nil
	})
	if errors.Is(err, retry.ErrPollExhausted) {
		return fmt.Errorf("%w: %s", ErrFileMissing, path)
	}
	return err
}

// FindRecent returns the newest video file in dir, preferring files that
// were not stored yet (names not starting with "NN_").
func FindRecent(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	type candidate struct {
		path string
		mod  time.Time
		name string
	}
	var videos []candidate
	for _, e := range entries {
		if e.IsDir() || !VideoExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		videos = append(videos, candidate{filepath.Join(dir, e.Name()), info.ModTime(), e.Name()})
	}
	if len(videos) == 0 {
		return "", fmt.Errorf("%w in %s", ErrFileMissing, dir)
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].mod.After(videos[j].mod) })
	for _, v := range videos {
		if !IsStoredName(v.name) {
			return v.path, nil
		}
	}
	return videos[0].path, nil
}

// IsStoredName reports whether name already has the NN_ prefix of a stored recording.
func IsStoredName(name string) bool {
	return len(name) >= 3 && isDigit(name[0]) && isDigit(name[1]) && name[2] == '_'
}

// DirSize returns the total size and number of regular files under dir.
func DirSize(dir string) (int64, int, error) {
	var size int64
	var count int
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		count++
		return nil
	})
	return size, count, err
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func stat(path string) (Stored, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Stored{}, err
	}
	return Stored{Path: path, Bytes: info.Size()}, nil
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// move renames src to dst, copying when the rename crosses filesystems.
func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !exists(src) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	in.Close()
	return os.Remove(src)
}
