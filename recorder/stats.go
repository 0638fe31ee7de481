package recorder

import (
	"log/slog"
	"time"

	"ytrecord/files"
)

// Stats accumulates what a run recorded.
type Stats struct {
	Videos        int
	TotalDuration time.Duration
	TotalBytes    int64
	Files         []string
}

// Add counts one stored recording.
func (s *Stats) Add(path string, bytes int64, d time.Duration) {
	s.Videos++
	s.TotalDuration += d
	s.TotalBytes += bytes
	s.Files = append(s.Files, path)
}

// Summary is the end-of-run report.
type Summary struct {
	Videos   int
	Duration time.Duration
	Bytes    int64
	// DiskBytes is the measured size of the module folders.
	DiskBytes int64
}

// Size returns the larger of the counted and measured sizes.
func (s Summary) Size() int64 {
	return max(s.Bytes, s.DiskBytes)
}

// Summarize builds the report, measuring the given module folders on disk.
func (s *Stats) Summarize(dirs []string) Summary {
	sum := Summary{Videos: s.Videos, Duration: s.TotalDuration, Bytes: s.TotalBytes}
	for _, dir := range dirs {
		size, _, err := files.DirSize(dir)
		if err == nil {
			sum.DiskBytes += size
		}
	}
	return sum
}

// Log writes the report as Info records.
func (s Summary) Log(logger *slog.Logger) {
	logger.Info("final summary")
	if s.Videos == 0 {
		logger.Info("no videos were recorded")
		return
	}
	attrs := []any{
		"videos", s.Videos,
		"duration", files.FormatDuration(s.Duration),
		"size", files.FormatSize(s.Size()),
	}
	if s.Duration >= time.Hour {
		attrs = append(attrs, "hours", float64(int(s.Duration.Hours()*100))/100)
	}
	logger.Info("recorded", attrs...)
}
