package browser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock parses a player time label: "SS", "MM:SS" or "HH:MM:SS".
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty clock")
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}

	var secs int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock %q", s)
		}
		secs = secs*60 + n
	}
	return time.Duration(secs) * time.Second, nil
}
