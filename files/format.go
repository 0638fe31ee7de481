package files

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const maxNameRunes = 150

var (
	separators   = regexp.MustCompile(`[\s|:]+`)
	invalidChars = regexp.MustCompile(`[\\/*?"<>|]`)
)

// SanitizeFilename makes a video title safe to use as a file name.
// Whitespace, '|' and ':' runs become '_', other reserved characters are
// dropped and the result is cut to 150 characters.
func SanitizeFilename(title string) string {
	name := separators.ReplaceAllString(strings.TrimSpace(title), "_")
	name = invalidChars.ReplaceAllString(name, "")
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == utf8.RuneError {
			return -1
		}
		return r
	}, name)

	if utf8.RuneCountInString(name) > maxNameRunes {
		name = string([]rune(name)[:maxNameRunes])
	}
	name = strings.Trim(name, "._")
	if name == "" {
		return "video"
	}
	return name
}

// FormatSize renders a byte count with a binary unit and two decimals.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n)
	for _, u := range []string{"KB", "MB", "GB"} {
		v /= unit
		// Values that round to 1024.00 print in the next unit.
		if v < unit-0.005 {
			return fmt.Sprintf("%.2f %s", v, u)
		}
	}
	return fmt.Sprintf("%.2f TB", v/unit)
}

// FormatDuration renders d with its two most significant units, e.g.
// "3 minutes and 5 seconds" or "2 days and 1 hour".
func FormatDuration(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs < 60 {
		return plural(secs, "second")
	}
	mins, secs := secs/60, secs%60
	if mins < 60 {
		return pair(mins, "minute", secs, "second")
	}
	hours, mins := mins/60, mins%60
	if hours < 24 {
		return pair(hours, "hour", mins, "minute")
	}
	days, hours := hours/24, hours%24
	return pair(days, "day", hours, "hour")
}

func pair(a int64, aUnit string, b int64, bUnit string) string {
	if b == 0 {
		return plural(a, aUnit)
	}
	return plural(a, aUnit) + " and " + plural(b, bUnit)
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
