package dedup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// File persists records as an indented JSON array. Writes go to a temporary
// sibling that is renamed over the target, so a crash never leaves a
// half-written file behind.
type File struct {
	Path     string
	FileMode os.FileMode
	DirMode  os.FileMode
}

// NewFile returns a file backend with default permissions.
func NewFile(path string) *File {
	return &File{Path: path, FileMode: 0o644, DirMode: 0o755}
}

func (f *File) Name() string { return "file:" + f.Path }

func (f *File) tempPath() string { return f.Path + ".tmp" }

// Load reads the record file. A missing or zero-length file is an empty store.
func (f *File) Load(context.Context) ([]Record, error) {
	// leftover from a write interrupted before rename
	if _, err := os.Stat(f.tempPath()); err == nil {
		_ = os.Remove(f.tempPath())
	}

	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return records, nil
}

// Save overwrites the record file atomically.
func (f *File) Save(_ context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	if dir := filepath.Dir(f.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, f.DirMode); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(f.tempPath(), data, f.FileMode); err != nil {
		return fmt.Errorf("write %s: %w", f.tempPath(), err)
	}
	if err := os.Rename(f.tempPath(), f.Path); err != nil {
		_ = os.Remove(f.tempPath())
		return fmt.Errorf("replace %s: %w", f.Path, err)
	}
	return nil
}

var _ Backend = (*File)(nil)
