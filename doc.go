// Package ytrecord records YouTube videos through OBS Studio.
//
// A URL file lists videos grouped into modules. For every video the recorder
// opens a tab in a Chromium browser started with a remote debugging port,
// starts playback in fullscreen, records it with OBS over obs-websocket for
// the video's duration plus margins, and files the recording as
// "NN_Title.ext" in the module's folder.
//
// # URL file
//
// A line starting with "#" begins a module; the rest of the line names it.
// Every other non-empty line is a YouTube URL of that module:
//
//	# Basics
//	https://www.youtube.com/watch?v=abc123
//	https://youtu.be/def456
//
//	# Advanced
//	https://www.youtube.com/watch?v=ghi789
//
// # Configuration
//
// Settings load in this order, later sources winning:
//
//  1. Default values
//  2. Config file (ytrecord.json, or the path passed with -config)
//  3. A .env file in the working directory
//  4. Environment variables prefixed with YTRECORD_, such as
//     YTRECORD_OBS_PASSWORD or YTRECORD_BROWSER
//  5. Command line flags
//
// # Packages
//
//   - playlist: URL file parsing and module selection
//   - browser: Chromium control over the DevTools protocol
//   - obs: recording control over obs-websocket
//   - files: naming and moving finished recordings
//   - metadata: YouTube Data API fallback for titles and durations
//   - http: rate limited, circuit broken transport for the Data API
//   - recorder: the per-video pipeline and the run loop
//   - config: configuration loading and validation
//
// # Errors
//
// Failures are sentinel errors wrapped with context, so callers test them with
// errors.Is. The most common ones are re-exported from this package:
//
//	if errors.Is(err, ytrecord.ErrDebugPortClosed) {
//		fmt.Println("start the browser with --remote-debugging-port=9222")
//	}
package ytrecord
