package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	afsurl "github.com/viant/afs/url"
)

// FileStore persists one JSON document per thread through an afs.Service.
//
// The base location may be a local directory or any URL for which an afs
// connector is registered. Compare-and-swap is
// enforced within the process by a mutex; do not point two processes at the
// same location unless they serialize access themselves.
type FileStore struct {
	basePath string
	fs       afs.Service
	mu       sync.Mutex
}

// NewFileStore creates the base location if needed and returns a store.
func NewFileStore(basePath string) (*FileStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	fs := afs.New()
	ctx := context.Background()
	basePath = afsurl.Normalize(basePath, file.Scheme)
	exists, _ := fs.Exists(ctx, basePath)
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}

	return &FileStore{basePath: basePath, fs: fs}, nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, threadID)
}

func (s *FileStore) load(ctx context.Context, threadID string) (Checkpoint, error) {
	location := s.checkpointPath(threadID)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to check checkpoint %s: %w", threadID, err)
	}
	if !exists {
		return Checkpoint{}, ErrNotFound
	}

	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to read checkpoint %s: %w", threadID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint %s: %w", threadID, err)
	}
	return cp, nil
}

// Save implements Store. The document is written to a staging object next to
// the checkpoint and then renamed over it, so a reader sees either the
// previous revision or the new one.
func (s *FileStore) Save(ctx context.Context, cp Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	prev, err := s.load(ctx, cp.ThreadID)
	switch {
	case err == nil:
		stored = prev.Seq
	case !errors.Is(err, ErrNotFound):
		return err
	}
	if err := checkRevision(cp.ThreadID, stored, cp.Seq); err != nil {
		return err
	}

	location := s.checkpointPath(cp.ThreadID)
	staging := location + "." + uuid.NewString() + ".tmp"
	if err := s.fs.Upload(ctx, staging, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		_ = s.fs.Delete(ctx, staging)
		return fmt.Errorf("failed to write checkpoint %s: %w", cp.ThreadID, err)
	}
	if err := s.replace(ctx, staging, location); err != nil {
		_ = s.fs.Delete(ctx, staging)
		return fmt.Errorf("failed to commit checkpoint %s: %w", cp.ThreadID, err)
	}
	return nil
}

// replace moves staging onto location. afs's Move removes the destination
// before renaming, which leaves a window with no checkpoint, so local files
// go through os.Rename directly.
func (s *FileStore) replace(ctx context.Context, staging, location string) error {
	if afsurl.Scheme(location, file.Scheme) == file.Scheme {
		return os.Rename(file.Path(staging), file.Path(location))
	}
	return s.fs.Move(ctx, staging, location)
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	location := s.checkpointPath(threadID)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return fmt.Errorf("failed to check checkpoint %s: %w", threadID, err)
	}
	if !exists {
		return ErrNotFound
	}
	if err := s.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", threadID, err)
	}
	return nil
}

// BasePath returns the normalized base location.
func (s *FileStore) BasePath() string {
	return s.basePath
}

// checkpointPath escapes the thread id so arbitrary ids map to one file.
func (s *FileStore) checkpointPath(threadID string) string {
	return afsurl.Join(s.basePath, url.PathEscape(threadID)+".json")
}
