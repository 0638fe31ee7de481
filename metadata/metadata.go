// Package metadata looks up video titles and durations through the YouTube
// Data API v3. The recorder uses it when the watch page does not expose them.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	ythttp "ytrecord/http"
	"ytrecord/internal/retry"
	"ytrecord/playlist"
)

var (
	// ErrVideoNotFound indicates the API has no video with that ID.
	ErrVideoNotFound = errors.New("metadata: video not found")
	// ErrInvalidURL indicates the URL carries no video ID.
	ErrInvalidURL = errors.New("metadata: no video id in url")
)

// Info is what the API knows about a video.
type Info struct {
	ID       string
	Title    string
	Duration time.Duration
}

// Source looks up video metadata by watch URL.
type Source interface {
	Lookup(ctx context.Context, url string) (Info, error)
}

// APIClient is a Source backed by the YouTube Data API.
type APIClient struct {
	service *youtube.Service
	// RetryConfig controls retries of transient API failures.
	RetryConfig retry.Config
}

// NewAPIClient creates a client authenticated with apiKey. Requests go
// through a rate limited, circuit broken transport that also carries the key.
// Extra options are passed to the API service, e.g. option.WithEndpoint in tests.
func NewAPIClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*APIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}

	hc := ythttp.DefaultConfig()
	hc.APIKey = apiKey
	client := ythttp.NewClient(hc, slog.Default().With("component", "metadata"))

	// WithHTTPClient disables WithAPIKey, so the transport adds the key itself.
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	return &APIClient{service: service, RetryConfig: retry.DefaultConfig()}, nil
}

// Lookup fetches the title and duration of the video at url.
func (c *APIClient) Lookup(ctx context.Context, url string) (Info, error) {
	id, ok := playlist.VideoID(url)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}

	var info Info
	err := retry.Do(ctx, c.RetryConfig, apiErrorClassifier, func(ctx context.Context) error {
		resp, err := c.service.Videos.List([]string{"snippet", "contentDetails"}).Id(id).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return fmt.Errorf("%w: %s", ErrVideoNotFound, id)
		}

		item := resp.Items[0]
		info = Info{ID: id}
		if item.Snippet != nil {
			info.Title = item.Snippet.Title
		}
		if item.ContentDetails != nil {
			d, err := ParseISODuration(item.ContentDetails.Duration)
			if err == nil {
				info.Duration = d
			}
		}
		return nil
	})
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

// apiErrorClassifier determines if an API error is retryable.
func apiErrorClassifier(err error) bool {
	if errors.Is(err, ErrVideoNotFound) || errors.Is(err, ythttp.ErrCircuitOpen) {
		return false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			// Bad key or exhausted quota do not recover within a run.
			return false
		}
		return true
	}

	return retry.IsRetryable(err)
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration parses the ISO 8601 durations used by the API, e.g. "PT1H2M3S".
func ParseISODuration(s string) (time.Duration, error) {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, u := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d += time.Duration(n) * u
	}
	return d, nil
}
