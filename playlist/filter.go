package playlist

import (
	"log/slog"
)

// FromModule drops every module before the one named start. An empty or
// unknown name leaves mods unchanged.
func FromModule(mods []Module, start string, logger *slog.Logger) []Module {
	if start == "" {
		return mods
	}
	logger = orDefault(logger)

	for i, m := range mods {
		if m.Name == start {
			if i > 0 {
				logger.Info("skipping modules before start module", "skipped", i, "module", start)
			}
			return mods[i:]
		}
	}
	logger.Warn("start module not found, processing all modules", "module", start)
	return mods
}

// LimitForTest keeps the first maxModules modules and the first maxVideos
// entries of each. Zero means no limit.
func LimitForTest(mods []Module, maxModules, maxVideos int, logger *slog.Logger) []Module {
	logger = orDefault(logger)

	out := mods
	if maxModules > 0 && len(out) > maxModules {
		logger.Info("test mode: limiting modules", "kept", maxModules, "total", len(mods))
		out = out[:maxModules]
	}
	if maxVideos <= 0 {
		return out
	}

	limited := make([]Module, len(out))
	for i, m := range out {
		limited[i] = m
		if len(m.Entries) > maxVideos {
			logger.Info("test mode: limiting videos", "module", m.Name, "kept", maxVideos, "total", len(m.Entries))
			limited[i].Entries = m.Entries[:maxVideos]
		}
	}
	return limited
}

// StartAt drops the entries before a 1-based start index. Per-module indexes
// take precedence; without them the global index applies to the first module
// only. An index past the end of a module is ignored with a warning.
func StartAt(mods []Module, global int, perModule map[string]int, logger *slog.Logger) []Module {
	logger = orDefault(logger)

	out := make([]Module, len(mods))
	copy(out, mods)

	trim := func(i, start int) {
		m := out[i]
		if start <= 1 {
			return
		}
		if start > len(m.Entries) {
			logger.Warn("start video beyond module size, processing all videos",
				"module", m.Name, "start", start, "videos", len(m.Entries))
			return
		}
		out[i].Entries = m.Entries[start-1:]
		logger.Info("continuing module from video", "module", m.Name, "start", start, "remaining", len(out[i].Entries))
	}

	if len(perModule) > 0 {
		for i, m := range out {
			trim(i, perModule[m.Name])
		}
		return out
	}
	if len(out) > 0 {
		trim(0, global)
	}
	return out
}

// SkipRecorded drops entries for which recorded reports true.
func SkipRecorded(mods []Module, recorded func(module, url string) bool, logger *slog.Logger) []Module {
	logger = orDefault(logger)

	out := make([]Module, len(mods))
	skipped := 0
	for i, m := range mods {
		out[i] = Module{Name: m.Name}
		for _, e := range m.Entries {
			if recorded(m.Name, e.URL) {
				skipped++
				continue
			}
			out[i].Entries = append(out[i].Entries, e)
		}
	}
	if skipped > 0 {
		logger.Info("resume: skipping already recorded videos", "skipped", skipped)
	}
	return out
}
