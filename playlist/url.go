package playlist

import (
	"net/url"
	"strings"
)

var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// IsYouTubeURL reports whether raw is an http(s) URL on a YouTube host.
func IsYouTubeURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return youtubeHosts[strings.ToLower(u.Hostname())]
}

// VideoID extracts the video ID from watch, youtu.be, shorts, embed and live URLs.
func VideoID(raw string) (string, bool) {
	if !IsYouTubeURL(raw) {
		return "", false
	}
	u, _ := url.Parse(strings.TrimSpace(raw))

	if strings.EqualFold(u.Hostname(), "youtu.be") {
		id := strings.Trim(u.Path, "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
		return id, id != ""
	}

	if id := u.Query().Get("v"); id != "" {
		return id, true
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 2 {
		switch parts[0] {
		case "shorts", "embed", "live", "v":
			return parts[1], parts[1] != ""
		}
	}
	return "", false
}
