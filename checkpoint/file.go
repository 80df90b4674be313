package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one JSON checkpoint file per run id under a directory.
// Writes go through a temp file plus rename so a crash mid-write leaves the
// previous snapshot authoritative.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Load reads the checkpoint for a run id.
func (s *FileStore) Load(runID string) (Checkpoint, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Checkpoint{}, ErrNotFound
		}
		return Checkpoint{}, fmt.Errorf("checkpoint: read run %s: %w", runID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: decode run %s: %w", runID, err)
	}
	return cp, nil
}

// Save atomically replaces the checkpoint for cp.RunID.
func (s *FileStore) Save(cp Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("checkpoint: run id is required")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: ensure store dir: %w", err)
	}
	encoded, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encode run %s: %w", cp.RunID, err)
	}
	tmp, err := os.CreateTemp(s.dir, "checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(encoded, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("checkpoint: write run %s: %w", cp.RunID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("checkpoint: sync run %s: %w", cp.RunID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("checkpoint: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(cp.RunID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("checkpoint: commit run %s: %w", cp.RunID, err)
	}
	return nil
}

// Runs lists the run ids with a stored checkpoint.
func (s *FileStore) Runs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: list runs: %w", err)
	}
	var runs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		runs = append(runs, strings.TrimSuffix(name, ".json"))
	}
	return runs, nil
}

func (s *FileStore) path(runID string) string {
	return filepath.Join(s.dir, sanitizeRunID(runID)+".json")
}

// sanitizeRunID keeps run ids filesystem-safe. Branch run ids contain
// separators by construction.
func sanitizeRunID(runID string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", string(filepath.Separator), "_")
	return replacer.Replace(runID)
}
