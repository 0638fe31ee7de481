package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"ytrecord/internal/retry"
)

// PortOpen reports whether something accepts TCP connections on addr.
func PortOpen(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Candidates returns the executables tried for a browser name on goos, in order.
// Bare names are resolved through PATH.
func Candidates(name, goos string) []string {
	brave := strings.EqualFold(name, "brave")
	switch goos {
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		if local == "" {
			if home, err := os.UserHomeDir(); err == nil {
				local = filepath.Join(home, "AppData", "Local")
			}
		}
		if brave {
			return []string{
				filepath.Join(local, `BraveSoftware\Brave-Browser\Application\brave.exe`),
				`C:\Program Files\BraveSoftware\Brave-Browser\Application\brave.exe`,
				`C:\Program Files (x86)\BraveSoftware\Brave-Browser\Application\brave.exe`,
				"brave.exe",
			}
		}
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			filepath.Join(local, `Google\Chrome\Application\chrome.exe`),
			"chrome.exe",
		}
	case "darwin":
		if brave {
			return []string{"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser"}
		}
		return []string{"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"}
	default:
		if brave {
			return []string{"brave-browser", "brave-browser-stable", "brave"}
		}
		return []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"}
	}
}

// FindExecutable returns the first installed candidate for the browser name.
func FindExecutable(name string) (string, error) {
	for _, c := range Candidates(name, runtime.GOOS) {
		if filepath.IsAbs(c) {
			if info, err := os.Stat(c); err == nil && !info.IsDir() {
				return c, nil
			}
			continue
		}
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s executable not found", name)
}

// launchArgs are the flags the browser is started with.
func launchArgs(port int, userDataDir string) []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(port),
		"--new-window",
	}
	if userDataDir != "" {
		args = append(args, "--user-data-dir="+userDataDir)
	}
	return args
}

// ensureDebugPort makes sure the DevTools port answers, launching the browser
// when allowed. It reports whether the browser was started here.
func ensureDebugPort(ctx context.Context, opts Options, logger *slog.Logger) (bool, error) {
	addr := opts.addr()
	if PortOpen(addr, time.Second) {
		logger.Info("debug port open", "address", addr)
		return false, nil
	}
	logger.Warn("debug port closed", "address", addr)

	if !opts.Launch {
		logManualLaunch(logger, opts)
		return false, fmt.Errorf("%w at %s", ErrDebugPortClosed, addr)
	}

	path := opts.ExecPath
	if path == "" {
		p, err := FindExecutable(opts.Name)
		if err != nil {
			logManualLaunch(logger, opts)
			return false, fmt.Errorf("%w: %v", ErrDebugPortClosed, err)
		}
		path = p
	}

	logger.Info("launching browser with debug port", "path", path, "port", opts.Port)
	cmd := exec.Command(path, launchArgs(opts.Port, opts.UserDataDir)...)
	if err := cmd.Start(); err != nil {
		logManualLaunch(logger, opts)
		return false, fmt.Errorf("%w: start %s: %v", ErrDebugPortClosed, path, err)
	}
	// The browser belongs to the user and outlives this process.
	cmd.Process.Release()

	err := retry.Poll(ctx, opts.LaunchInterval, opts.LaunchAttempts, func(context.Context) (bool, error) {
		return PortOpen(addr, time.Second), nil
	})
	if errors.Is(err, retry.ErrPollExhausted) {
		logger.Error("browser started but the debug port never opened; close every browser window and retry")
		logManualLaunch(logger, opts)
		return true, fmt.Errorf("%w at %s after launch", ErrDebugPortClosed, addr)
	}
	if err != nil {
		return true, err
	}
	logger.Info("browser ready", "address", addr)
	return true, nil
}

func logManualLaunch(logger *slog.Logger, opts Options) {
	exe := opts.ExecPath
	if exe == "" {
		if c := Candidates(opts.Name, runtime.GOOS); len(c) > 0 {
			exe = c[0]
		}
	}
	logger.Error("start the browser manually with remote debugging enabled",
		"command", fmt.Sprintf("%q %s", exe, strings.Join(launchArgs(opts.Port, opts.UserDataDir), " ")))
	logger.Error("the browser must be fully closed first, otherwise the flag is ignored")
}
