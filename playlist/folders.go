package playlist

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FolderName turns a module name into a directory name usable on every OS.
func FolderName(module string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, module)
	name = strings.TrimRight(strings.TrimSpace(name), ". ")
	if name == "" || name == "." || name == ".." {
		return "module"
	}
	return name
}

// CreateFolders creates one directory under base for every module that has
// entries. It returns module name to directory. A folder that cannot be
// created is logged and left out; the error is returned only when no folder
// could be prepared at all.
func CreateFolders(base string, mods []Module, logger *slog.Logger) (map[string]string, error) {
	logger = orDefault(logger)

	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	dirs := make(map[string]string, len(mods))
	var errs []error
	for _, m := range mods {
		if len(m.Entries) == 0 {
			logger.Warn("skipping module without urls", "module", m.Name)
			continue
		}

		dir, err := filepath.Abs(filepath.Join(base, FolderName(m.Name)))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			logger.Warn("folder already exists, files may be overwritten", "module", m.Name, "dir", dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("cannot create module folder", "module", m.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		dirs[m.Name] = dir
		logger.Info("folder ready", "module", m.Name, "dir", dir)
	}

	if len(dirs) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("create module folders: %w", errors.Join(errs...))
	}
	return dirs, nil
}
