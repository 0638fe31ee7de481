//go:build windows

package storage

import (
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// fileLock keeps a second ytrecord process from writing the same journal.
// It uses LockFileEx on path + ".lock".
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path + ".lock"}
}

// lock acquires an exclusive lock, giving up with ErrLockTimeout after timeout.
func (l *fileLock) lock(timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return &StorageError{Op: "lock", Entity: "journal", ID: l.path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for {
		var ol windows.Overlapped
		err := windows.LockFileEx(windows.Handle(f.Fd()),
			windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, &ol)
		if err == nil {
			l.file = f
			return nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return ErrLockTimeout
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (l *fileLock) unlock() error {
	if l.file == nil {
		return nil
	}
	var ol windows.Overlapped
	windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, &ol)
	err := l.file.Close()
	os.Remove(l.path)
	l.file = nil
	return err
}
