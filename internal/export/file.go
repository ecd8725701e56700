package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileDestination writes snapshots to a local path. Each write replaces the
// file atomically through a rename.
type FileDestination struct {
	path string
}

func NewFileDestination(path string) *FileDestination {
	return &FileDestination{path: path}
}

func (d *FileDestination) String() string { return d.path }

func (d *FileDestination) Write(_ context.Context, snap *Snapshot) error {
	tmp, err := os.CreateTemp(filepath.Dir(d.path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(snap.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot %s: %w", snap.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("replace %s: %w", d.path, err)
	}
	return nil
}
