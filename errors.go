package ytrecord

import (
	"ytrecord/browser"
	"ytrecord/files"
	"ytrecord/internal/storage"
	"ytrecord/obs"
	"ytrecord/playlist"
	"ytrecord/recorder"
)

// Sentinel errors of the sub-packages.
var (
	ErrURLFileNotFound = playlist.ErrURLFileNotFound
	ErrNoModules       = playlist.ErrNoModules

	ErrDebugPortClosed = browser.ErrDebugPortClosed
	ErrLoadTimeout     = browser.ErrLoadTimeout
	ErrNotYouTube      = browser.ErrNotYouTube
	ErrFullscreen      = browser.ErrFullscreen

	ErrOBSConnect     = obs.ErrConnect
	ErrNotRecording   = obs.ErrNotRecording
	ErrStartFailed    = obs.ErrStartFailed
	ErrRecordingGone  = files.ErrFileMissing
	ErrJournalCorrupt = storage.ErrStorageCorrupt

	ErrNothingToRecord = recorder.ErrNothingToRecord
)

// Error types carrying the failing operation. Use errors.As to inspect them.
type (
	// BrowserError wraps a failed browser operation with the URL involved.
	BrowserError = browser.Error
	// OBSError wraps a failed obs-websocket request.
	OBSError = obs.Error
	// StepError names the pipeline step at which a video failed.
	StepError = recorder.StepError
)
