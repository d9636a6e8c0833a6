package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	pkgerrors "github.com/yungbote/learnmate-backend/internal/pkg/errors"
)

const DefaultDir = "data/progress"

// FileStore keeps one JSON file per session. Writes go through a temp file and
// a rename so readers never observe a partial document.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileStore{dir: dir}
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(sessionID string) (string, error) {
	id, err := SafeID(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+".json"), nil
}

func (s *FileStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(snap.SessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("progress: mkdir: %w", err)
	}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("progress: encode: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("progress: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("progress: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("progress: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("progress: rename: %w", err)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("progress for %q: %w", sessionID, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("progress: read: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("progress: decode: %w", err)
	}
	return &snap, nil
}
