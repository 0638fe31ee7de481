//go:build integration

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

// TestSecondOpenTimesOut checks that a journal held open cannot be opened again.
func TestSecondOpenTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")

	first, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	defer first.Close()

	if _, err := NewJSONStore(path); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("second NewJSONStore() error = %v, want ErrLockTimeout", err)
	}
}

// TestConcurrentRecordings checks that concurrent writers do not lose entries.
func TestConcurrentRecordings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{URLFile: "urls.txt"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := &Recording{RunID: run.ID, Module: "M", URL: "https://youtu.be/" + string(rune('a'+i)), Number: i + 1}
			if err := store.AddRecording(ctx, rec); err != nil {
				t.Errorf("AddRecording() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	recs, err := store.Recordings(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != n {
		t.Errorf("Recordings() = %d entries, want %d", len(recs), n)
	}
}
