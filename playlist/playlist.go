// Package playlist reads the URL file that drives a recording run.
//
// The file is plain text. A line starting with '#' opens a module and
// names it; the YouTube URLs that follow belong to that module:
//
//	# Introduction
//	https://www.youtube.com/watch?v=abc
//	https://youtu.be/def
//
//	# Advanced topics
//	https://www.youtube.com/watch?v=ghi
//
// Blank lines are ignored. Anything else inside a module is logged and skipped.
package playlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	// ErrURLFileNotFound indicates the URL file does not exist.
	ErrURLFileNotFound = errors.New("playlist: url file not found")
	// ErrNoModules indicates the file has no module header.
	ErrNoModules = errors.New("playlist: no modules found")
)

// Entry is one video URL of a module.
type Entry struct {
	// Number is the 1-based position of the URL in its module as written in
	// the file. Filters never renumber entries.
	Number int
	URL    string
}

// Module is a named group of videos recorded into one folder.
type Module struct {
	Name    string
	Entries []Entry
}

// URLs returns the module's URLs in order.
func (m Module) URLs() []string {
	urls := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		urls[i] = e.URL
	}
	return urls
}

// CountURLs returns the total number of entries across modules.
func CountURLs(mods []Module) int {
	n := 0
	for _, m := range mods {
		n += len(m.Entries)
	}
	return n
}

// ParseFile reads and parses the URL file at path.
func ParseFile(path string, logger *slog.Logger) ([]Module, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrURLFileNotFound, path)
		}
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	return Parse(f, logger)
}

// Parse reads modules and URLs from r. Modules keep the order of their first
// header; a repeated header appends to the existing module.
func Parse(r io.Reader, logger *slog.Logger) ([]Module, error) {
	logger = orDefault(logger)

	var (
		mods    []Module
		index   = make(map[string]int)
		current = -1
		lines   int
		urls    int
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if line == "" {
			continue
		}
		lines++

		switch {
		case strings.HasPrefix(line, "#"):
			name := strings.TrimSpace(strings.TrimLeft(line, "# "))
			if name == "" {
				logger.Warn("module header without a name, following urls ignored", "line", lineNo)
				current = -1
				continue
			}
			if i, ok := index[name]; ok {
				logger.Warn("module header repeated, appending to existing module", "line", lineNo, "module", name)
				current = i
				continue
			}
			index[name] = len(mods)
			current = len(mods)
			mods = append(mods, Module{Name: name})
			logger.Info("module found", "line", lineNo, "module", name)

		case current < 0:
			logger.Debug("line outside a module ignored", "line", lineNo)

		case strings.HasPrefix(strings.ToLower(line), "http"):
			if !IsYouTubeURL(line) {
				logger.Warn("not a youtube url, ignored", "line", lineNo, "url", truncate(line, 50))
				continue
			}
			m := &mods[current]
			m.Entries = append(m.Entries, Entry{Number: len(m.Entries) + 1, URL: line})
			urls++

		default:
			logger.Warn("line ignored, not a url", "line", lineNo, "text", truncate(line, 50))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}

	logger.Info("url file read", "lines", lines, "modules", len(mods), "urls", urls)

	if len(mods) == 0 {
		return nil, ErrNoModules
	}

	var empty []string
	for _, m := range mods {
		if len(m.Entries) == 0 {
			empty = append(empty, m.Name)
		}
	}
	if len(empty) > 0 {
		logger.Warn("modules without urls", "modules", empty)
	}

	return mods, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
