package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// atomicWriter writes to a temp file next to the target and renames it
// over the target on commit, so readers never see a partial journal.
type atomicWriter struct {
	path string
	tmp  *os.File
}

func newAtomicWriter(path string) (*atomicWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ytrecord-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &atomicWriter{path: path, tmp: tmp}, nil
}

func (w *atomicWriter) Write(p []byte) (int, error) {
	return w.tmp.Write(p)
}

func (w *atomicWriter) commit() error {
	if err := w.tmp.Sync(); err != nil {
		w.abort()
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (w *atomicWriter) abort() {
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}

// writeJSONAtomic encodes v as indented JSON into path.
func writeJSONAtomic(path string, v any) error {
	w, err := newAtomicWriter(path)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		w.abort()
		return err
	}
	return w.commit()
}
