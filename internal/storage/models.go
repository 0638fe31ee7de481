package storage

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of the recorder over a URL file.
type Run struct {
	ID         string    `json:"id"` // Internal UUID
	URLFile    string    `json:"url_file"`
	TestMode   bool      `json:"test_mode"`
	Status     RunStatus `json:"status"`
	Recorded   int       `json:"recorded"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Recording is a video file produced by a run.
type Recording struct {
	ID              string    `json:"id"`     // Internal UUID
	RunID           string    `json:"run_id"` // FK to Run.ID
	Module          string    `json:"module"`
	URL             string    `json:"url"`
	Number          int       `json:"number"` // Position of the URL in its module
	Title           string    `json:"title"`
	Path            string    `json:"path"`
	Bytes           int64     `json:"bytes"`
	DurationSeconds float64   `json:"duration_seconds"`
	RecordedAt      time.Time `json:"recorded_at"`
}
