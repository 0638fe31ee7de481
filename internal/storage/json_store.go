package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	schemaVersion = "1.0"
	lockTimeout   = 5 * time.Second
)

// JSONStore implements Journal using a single JSON file.
type JSONStore struct {
	path     string
	lock     *fileLock
	data     *storeData
	readOnly bool
	mu       sync.RWMutex
}

var _ Journal = (*JSONStore)(nil)

// storeData is the top-level JSON structure.
type storeData struct {
	Version    string                `json:"version"`
	UpdatedAt  time.Time             `json:"updated_at"`
	Runs       map[string]*Run       `json:"runs"`
	Recordings map[string]*Recording `json:"recordings"`
	Indexes    *indexes              `json:"indexes"`
}

// indexes maintains lookup tables for efficient queries.
type indexes struct {
	RecordingsByRun map[string][]string `json:"recordings_by_run"` // run_id -> []recording_id
	RecordedURL     map[string]string   `json:"recorded_url"`      // module + "\n" + url -> recording_id
}

// NewJSONStore opens the journal at path, creating it when missing.
// The journal stays locked until Close.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path: path,
		lock: newFileLock(path),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageError{Op: "create", Entity: "journal", ID: path, Err: err}
	}
	if err := s.lock.lock(lockTimeout); err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return nil, &StorageError{Op: "lock", Entity: "journal", ID: path, Err: fmt.Errorf("%w (is a run in progress?)", err)}
		}
		return nil, err
	}

	if err := s.load(); err != nil {
		s.lock.unlock()
		return nil, err
	}

	return s, nil
}

// OpenReadOnly reads the journal at path without locking or creating it.
// A missing journal reads as empty. Writes return ErrReadOnly.
func OpenReadOnly(path string) (*JSONStore, error) {
	s := &JSONStore{path: path, readOnly: true}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.data = newStoreData()
			if s.readOnly {
				return nil
			}
			// Save immediately to catch permission errors early
			return s.save()
		}
		return &StorageError{Op: "read", Entity: "store", Err: err}
	}

	s.data = &storeData{}
	if err := json.Unmarshal(data, s.data); err != nil {
		return &StorageError{Op: "read", Entity: "store", Err: ErrStorageCorrupt}
	}
	if s.data.Runs == nil {
		s.data.Runs = make(map[string]*Run)
	}
	if s.data.Recordings == nil {
		s.data.Recordings = make(map[string]*Recording)
	}
	if s.data.Indexes == nil {
		s.data.Indexes = newIndexes()
	}
	return nil
}

func (s *JSONStore) save() error {
	if s.readOnly {
		return &StorageError{Op: "write", Entity: "store", Err: ErrReadOnly}
	}
	s.data.UpdatedAt = time.Now()
	if err := writeJSONAtomic(s.path, s.data); err != nil {
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}
	return nil
}

// Close releases the journal lock.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		return nil
	}
	return s.lock.unlock()
}

func newStoreData() *storeData {
	return &storeData{
		Version:    schemaVersion,
		UpdatedAt:  time.Now(),
		Runs:       make(map[string]*Run),
		Recordings: make(map[string]*Recording),
		Indexes:    newIndexes(),
	}
}

func newIndexes() *indexes {
	return &indexes{
		RecordingsByRun: make(map[string][]string),
		RecordedURL:     make(map[string]string),
	}
}

func urlKey(module, url string) string {
	return module + "\n" + url
}

// --- runs ---

func (s *JSONStore) CreateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if _, exists := s.data.Runs[run.ID]; exists {
		return &StorageError{Op: "create", Entity: "run", ID: run.ID, Err: ErrAlreadyExists}
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	s.data.Runs[run.ID] = run
	return s.save()
}

func (s *JSONStore) FinishRun(ctx context.Context, id string, status RunStatus, recorded, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.data.Runs[id]
	if !exists {
		return &StorageError{Op: "update", Entity: "run", ID: id, Err: ErrNotFound}
	}
	run.Status = status
	run.Recorded = recorded
	run.Failed = failed
	run.FinishedAt = time.Now()
	return s.save()
}

func (s *JSONStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data.Runs[id]
	if !exists {
		return nil, &StorageError{Op: "read", Entity: "run", ID: id, Err: ErrNotFound}
	}
	return run, nil
}

func (s *JSONStore) ListRuns(ctx context.Context) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*Run, 0, len(s.data.Runs))
	for _, r := range s.data.Runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// --- recordings ---

func (s *JSONStore) AddRecording(ctx context.Context, rec *Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.RunID == "" || rec.URL == "" {
		return &StorageError{Op: "create", Entity: "recording", Err: ErrInvalidInput}
	}
	if _, exists := s.data.Runs[rec.RunID]; !exists {
		return &StorageError{Op: "create", Entity: "recording", ID: rec.RunID, Err: ErrNotFound}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := s.data.Recordings[rec.ID]; exists {
		return &StorageError{Op: "create", Entity: "recording", ID: rec.ID, Err: ErrAlreadyExists}
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	s.data.Recordings[rec.ID] = rec
	s.data.Indexes.RecordingsByRun[rec.RunID] = append(s.data.Indexes.RecordingsByRun[rec.RunID], rec.ID)
	s.data.Indexes.RecordedURL[urlKey(rec.Module, rec.URL)] = rec.ID
	return s.save()
}

func (s *JSONStore) Recordings(ctx context.Context, runID string) ([]*Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.data.Runs[runID]; !exists {
		return nil, &StorageError{Op: "read", Entity: "run", ID: runID, Err: ErrNotFound}
	}

	ids := s.data.Indexes.RecordingsByRun[runID]
	recs := make([]*Recording, 0, len(ids))
	for _, id := range ids {
		rec, ok := s.data.Recordings[id]
		if !ok {
			return nil, &StorageError{Op: "read", Entity: "recording", ID: id, Err: ErrStorageCorrupt}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *JSONStore) IsRecorded(ctx context.Context, module, url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data.Indexes.RecordedURL[urlKey(module, url)]
	return ok
}
